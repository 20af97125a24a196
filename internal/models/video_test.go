package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVideoStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to VideoStatus
		ok       bool
	}{
		{VideoStatusPending, VideoStatusDownloading, true},
		{VideoStatusDownloading, VideoStatusTranscribing, true},
		{VideoStatusTranscribing, VideoStatusProcessing, true},
		{VideoStatusProcessing, VideoStatusSegmented, true},
		{VideoStatusSegmented, VideoStatusCompleted, true},
		{VideoStatusPending, VideoStatusCompleted, true},
		{VideoStatusTranscribing, VideoStatusDownloading, false},
		{VideoStatusDownloading, VideoStatusDownloading, false},
		{VideoStatusPending, VideoStatusError, true},
		{VideoStatusSegmented, VideoStatusError, true},
		{VideoStatusCompleted, VideoStatusError, false},
		{VideoStatusError, VideoStatusPending, false},
		{VideoStatus("bogus"), VideoStatusDownloading, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestVideoPatchColumnsOnlySetFields(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cols := ErrorPatch("Failed to download video: boom").Columns(now)

	assert.Equal(t, map[string]interface{}{
		"updated_at":    now,
		"status":        "error",
		"error_message": "Failed to download video: boom",
	}, cols)
}

func TestVideoPatchApply(t *testing.T) {
	now := time.Now()
	title, transcript, words, segs := "Title", "a b c", 3, 1
	status := VideoStatusProcessing
	v := &Video{VideoID: "v1", Status: VideoStatusTranscribing}

	VideoPatch{
		Status:      &status,
		Title:       &title,
		Transcript:  &transcript,
		WordCount:   &words,
		MaxSegments: &segs,
	}.Apply(v, now)

	assert.Equal(t, VideoStatusProcessing, v.Status)
	assert.Equal(t, "Title", v.Title)
	assert.Equal(t, "a b c", *v.Transcript)
	assert.Equal(t, 3, *v.WordCount)
	assert.Equal(t, 1, *v.MaxSegments)
	assert.Nil(t, v.DurationSeconds)
	assert.Equal(t, now, v.UpdatedAt)
}

func TestAnswerValid(t *testing.T) {
	for _, a := range []Answer{AnswerA, AnswerB, AnswerC, AnswerD} {
		assert.True(t, a.Valid())
	}
	assert.False(t, Answer("E").Valid())
	assert.False(t, Answer("a").Valid())
}

func TestQuestionPatch(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	text, answer := "New?", AnswerD
	p := QuestionPatch{QuestionText: &text, CorrectAnswer: &answer}

	assert.False(t, p.Empty())
	assert.True(t, QuestionPatch{}.Empty())
	assert.Equal(t, map[string]interface{}{
		"updated_at":     now,
		"question_text":  "New?",
		"correct_answer": "D",
	}, p.Columns(now))

	q := &Question{QuestionText: "Old?", OptionA: "a", CorrectAnswer: AnswerA}
	p.Apply(q, now)
	assert.Equal(t, "New?", q.QuestionText)
	assert.Equal(t, "a", q.OptionA)
	assert.Equal(t, AnswerD, q.CorrectAnswer)
	assert.Equal(t, now, q.UpdatedAt)
}

func TestGrade(t *testing.T) {
	q := Question{QuestionID: "q1", CorrectAnswer: AnswerB, CreatorID: "c1"}

	right := Grade(q, "viewer", AnswerB)
	assert.True(t, right.IsCorrect)
	assert.Equal(t, "c1", right.CreatorID)
	assert.Equal(t, "q1", right.QuestionID)

	assert.False(t, Grade(q, "viewer", AnswerC).IsCorrect)
}
