package questions

import (
	"fmt"
	"strings"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
)

// lineLabels is the required label of each output line, in order.
var lineLabels = [...]string{"Q", "A", "B", "C", "D", "CORRECT"}

// Parsed is a validated multiple-choice question.
type Parsed struct {
	Question string
	OptionA  string
	OptionB  string
	OptionC  string
	OptionD  string
	Correct  models.Answer
}

// LineError describes the first line that broke the expected format. Line is
// 1-based; it is len(lineLabels)+1 for unexpected trailing lines.
type LineError struct {
	Line   int
	Label  string
	Reason string
}

func (e *LineError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.Label, e.Reason)
}

// Parse validates model output against the six-line tagged grammar:
//
//	Q: <text>
//	A: <text>
//	B: <text>
//	C: <text>
//	D: <text>
//	CORRECT: A|B|C|D
//
// Any deviation yields a MalformedGenerationOutput error wrapping a *LineError.
func Parse(output string) (Parsed, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}

	values := make([]string, len(lineLabels))
	for i, label := range lineLabels {
		if i >= len(lines) {
			return Parsed{}, malformed(&LineError{Line: i + 1, Label: label, Reason: "missing line"})
		}
		value, err := tagged(lines[i], label)
		if err != "" {
			return Parsed{}, malformed(&LineError{Line: i + 1, Label: label, Reason: err})
		}
		values[i] = value
	}
	if len(lines) > len(lineLabels) {
		return Parsed{}, malformed(&LineError{Line: len(lineLabels) + 1, Reason: "unexpected trailing content"})
	}

	correct := models.Answer(values[5])
	if !correct.Valid() {
		return Parsed{}, malformed(&LineError{Line: 6, Label: "CORRECT", Reason: fmt.Sprintf("answer %q is not one of A, B, C, D", values[5])})
	}

	return Parsed{
		Question: values[0],
		OptionA:  values[1],
		OptionB:  values[2],
		OptionC:  values[3],
		OptionD:  values[4],
		Correct:  correct,
	}, nil
}

// tagged returns the text after "<label>: ", or a reason the line does not
// match.
func tagged(line, label string) (string, string) {
	prefix := label + ": "
	if !strings.HasPrefix(line, prefix) {
		got := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			got = line[:idx]
		}
		return "", fmt.Sprintf("expected label %q, got %q", label, got)
	}
	value := line[len(prefix):]
	if value == "" {
		return "", "empty text"
	}
	return value, ""
}

func malformed(lineErr *LineError) error {
	return apperr.E(apperr.MalformedGenerationOutput, "invalid question format from language model", lineErr)
}
