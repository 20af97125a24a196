package models

import "time"

// Response represents a row of the responses table: one answer given to a
// question of the creator's quiz.
type Response struct {
	ResponseID     string    `json:"response_id"`
	QuestionID     string    `json:"question_id"`
	UserID         string    `json:"user_id"`
	SelectedAnswer Answer    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	CreatorID      string    `json:"creator_id"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewResponse is the insert shape for a recorded answer.
type NewResponse struct {
	QuestionID     string `json:"question_id"`
	UserID         string `json:"user_id"`
	SelectedAnswer Answer `json:"selected_answer"`
	IsCorrect      bool   `json:"is_correct"`
	CreatorID      string `json:"creator_id"`
	Status         string `json:"status"`
}

// Grade builds the response of userID choosing answer for q.
func Grade(q Question, userID string, answer Answer) NewResponse {
	return NewResponse{
		QuestionID:     q.QuestionID,
		UserID:         userID,
		SelectedAnswer: answer,
		IsCorrect:      answer == q.CorrectAnswer,
		CreatorID:      q.CreatorID,
		Status:         QuestionStatusActive,
	}
}
