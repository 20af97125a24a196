package segment

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandoe/quizmaker/internal/apperr"
)

func transcript(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func intPtr(n int) *int { return &n }

func TestSplitDefaultSizing(t *testing.T) {
	chunks, err := Split(transcript(1800), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 900, chunks[0].WordCount)
	assert.Equal(t, 900, chunks[1].WordCount)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "w900 "))
}

func TestSplitDefaultSizingRoundsUp(t *testing.T) {
	chunks, err := Split(transcript(1801), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{601, 601, 599}, wordCounts(chunks))
}

func TestSplitWithOverride(t *testing.T) {
	chunks, err := Split(transcript(10), intPtr(3))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{4, 4, 2}, wordCounts(chunks))
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Content)
	assert.Equal(t, "w4 w5 w6 w7", chunks[1].Content)
	assert.Equal(t, "w8 w9", chunks[2].Content)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
	}
}

func TestSplitOverrideLargerThanWordsDropsEmptyChunks(t *testing.T) {
	chunks, err := Split(transcript(10), intPtr(6))
	require.NoError(t, err)
	// ceil(10/6) = 2 words per segment fills five segments; the sixth is empty.
	assert.Equal(t, []int{2, 2, 2, 2, 2}, wordCounts(chunks))

	chunks, err = Split("one two", intPtr(5))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, wordCounts(chunks))
}

func TestSplitNormalisesWhitespace(t *testing.T) {
	chunks, err := Split("  alpha\tbeta\n\ngamma   delta  ", intPtr(2))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta", chunks[0].Content)
	assert.Equal(t, "gamma delta", chunks[1].Content)
}

func TestSplitRejectsEmptyTranscript(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := Split(text, nil)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.Segmentation))
		assert.Contains(t, err.Error(), "transcript is empty")
	}
}

func TestSplitRejectsNonPositiveOverride(t *testing.T) {
	for _, n := range []int{0, -1, -50} {
		_, err := Split(transcript(10), intPtr(n))
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.Segmentation))
	}
}

func TestPlan(t *testing.T) {
	n, err := Plan(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Plan(900, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Plan(901, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Plan(5, intPtr(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSplitPreservesWordSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		total := 1 + rng.Intn(3000)
		text := transcript(total)
		var override *int
		if rng.Intn(2) == 0 {
			override = intPtr(1 + rng.Intn(40))
		}

		chunks, err := Split(text, override)
		require.NoError(t, err)

		target, err := Plan(total, override)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunks), target)
		if target <= total {
			// Only possible shortfall comes from ceil rounding leaving the tail empty.
			per := ceilDiv(total, target)
			assert.Equal(t, ceilDiv(total, per), len(chunks))
		}

		contents := make([]string, len(chunks))
		sum := 0
		for i, c := range chunks {
			assert.NotEmpty(t, c.Content)
			assert.Equal(t, i, c.Position)
			contents[i] = c.Content
			sum += c.WordCount
		}
		assert.Equal(t, text, strings.Join(contents, " "))
		assert.Equal(t, total, sum)
	}
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("  \n"))
	assert.Equal(t, 3, CountWords(" a  b\tc "))
}

func wordCounts(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.WordCount
	}
	return out
}
