// Package segment partitions a transcript into near-equal word-count chunks,
// the unit of question generation.
package segment

import (
	"fmt"
	"strings"

	"github.com/ksandoe/quizmaker/internal/apperr"
)

// DefaultWordsPerSegment sizes segments when a video carries no explicit
// segment count.
const DefaultWordsPerSegment = 900

// Chunk is one contiguous slice of the transcript.
type Chunk struct {
	Position  int
	Content   string
	WordCount int
}

// Words splits text on runs of whitespace.
func Words(text string) []string {
	return strings.Fields(text)
}

// CountWords is the authoritative word count of a piece of text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Plan returns the number of segments to cut totalWords into. A nil override
// derives the count from DefaultWordsPerSegment; a non-positive override is
// rejected before any division happens.
func Plan(totalWords int, override *int) (int, error) {
	if override != nil {
		if *override <= 0 {
			return 0, apperr.New(apperr.Segmentation, fmt.Sprintf("invalid segment count override %d", *override))
		}
		return *override, nil
	}
	return ceilDiv(totalWords, DefaultWordsPerSegment), nil
}

// Split cuts text into segments. Every word of text appears in exactly one
// chunk, in source order. When the target count exceeds what the words can
// fill, trailing empty chunks are dropped, so fewer than the target may be
// returned. An empty or whitespace-only transcript is rejected.
func Split(text string, override *int) ([]Chunk, error) {
	words := Words(text)
	totalWords := len(words)
	if totalWords == 0 {
		return nil, apperr.New(apperr.Segmentation, "transcript is empty")
	}

	target, err := Plan(totalWords, override)
	if err != nil {
		return nil, err
	}
	wordsPerSegment := ceilDiv(totalWords, target)

	chunks := make([]Chunk, 0, target)
	for i := 0; i < target; i++ {
		start := i * wordsPerSegment
		if start >= totalWords {
			break
		}
		end := start + wordsPerSegment
		if end > totalWords {
			end = totalWords
		}
		content := strings.Join(words[start:end], " ")
		chunks = append(chunks, Chunk{
			Position:  len(chunks),
			Content:   content,
			WordCount: CountWords(content),
		})
	}
	return chunks, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
