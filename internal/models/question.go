package models

import "time"

// Answer is one of the four option labels.
type Answer string

const (
	AnswerA Answer = "A"
	AnswerB Answer = "B"
	AnswerC Answer = "C"
	AnswerD Answer = "D"
)

// Valid reports whether a is one of A, B, C or D.
func (a Answer) Valid() bool {
	switch a {
	case AnswerA, AnswerB, AnswerC, AnswerD:
		return true
	}
	return false
}

// QuestionStatusActive is the status written for freshly generated questions.
const QuestionStatusActive = "active"

// Question represents a row of the questions table. SegmentID is unique.
type Question struct {
	QuestionID    string    `json:"question_id"`
	SegmentID     string    `json:"segment_id"`
	QuestionText  string    `json:"question_text"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectAnswer Answer    `json:"correct_answer"`
	CreatorID     string    `json:"creator_id"`
	Status        string    `json:"status"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewQuestion is the insert shape written by the question generator.
type NewQuestion struct {
	SegmentID     string `json:"segment_id"`
	QuestionText  string `json:"question_text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer Answer `json:"correct_answer"`
	CreatorID     string `json:"creator_id"`
	Status        string `json:"status"`
}

// QuestionPatch lists the editable columns of a question. Nil fields are left
// untouched.
type QuestionPatch struct {
	QuestionText  *string `json:"question_text,omitempty"`
	OptionA       *string `json:"option_a,omitempty"`
	OptionB       *string `json:"option_b,omitempty"`
	OptionC       *string `json:"option_c,omitempty"`
	OptionD       *string `json:"option_d,omitempty"`
	CorrectAnswer *Answer `json:"correct_answer,omitempty"`
	Status        *string `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p QuestionPatch) Empty() bool {
	return p.QuestionText == nil && p.OptionA == nil && p.OptionB == nil && p.OptionC == nil &&
		p.OptionD == nil && p.CorrectAnswer == nil && p.Status == nil
}

// Columns flattens the patch into a column → value map, always stamping
// updated_at.
func (p QuestionPatch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.QuestionText != nil {
		cols["question_text"] = *p.QuestionText
	}
	if p.OptionA != nil {
		cols["option_a"] = *p.OptionA
	}
	if p.OptionB != nil {
		cols["option_b"] = *p.OptionB
	}
	if p.OptionC != nil {
		cols["option_c"] = *p.OptionC
	}
	if p.OptionD != nil {
		cols["option_d"] = *p.OptionD
	}
	if p.CorrectAnswer != nil {
		cols["correct_answer"] = string(*p.CorrectAnswer)
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	return cols
}

// Apply copies the patch onto q.
func (p QuestionPatch) Apply(q *Question, now time.Time) {
	if p.QuestionText != nil {
		q.QuestionText = *p.QuestionText
	}
	if p.OptionA != nil {
		q.OptionA = *p.OptionA
	}
	if p.OptionB != nil {
		q.OptionB = *p.OptionB
	}
	if p.OptionC != nil {
		q.OptionC = *p.OptionC
	}
	if p.OptionD != nil {
		q.OptionD = *p.OptionD
	}
	if p.CorrectAnswer != nil {
		q.CorrectAnswer = *p.CorrectAnswer
	}
	if p.Status != nil {
		q.Status = *p.Status
	}
	q.UpdatedAt = now
}
