// Package questions turns one transcript segment into a stored
// multiple-choice question.
package questions

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/llm"
	"github.com/ksandoe/quizmaker/internal/models"
)

// Store is the slice of persistence the generator needs.
type Store interface {
	QuestionExists(ctx context.Context, segmentID string) (bool, error)
	// InsertQuestion reports false when a question for the segment already
	// exists and nothing was written.
	InsertQuestion(ctx context.Context, q models.NewQuestion) (bool, error)
	UpdateSegmentStatus(ctx context.Context, segmentID, creatorID string, status models.SegmentStatus, errMsg *string) error
}

// Completer is a chat-completion provider.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Outcome labels reported to the Recorder.
const (
	OutcomeCreated   = "created"
	OutcomeSkipped   = "skipped"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// Recorder receives one outcome per Generate call. May be nil.
type Recorder interface {
	QuestionOutcome(outcome string)
}

// Generator produces at most one question per segment.
type Generator struct {
	store    Store
	llm      Completer
	recorder Recorder
	log      *logrus.Entry
}

// NewGenerator creates a Generator.
func NewGenerator(store Store, completer Completer, recorder Recorder, log *logrus.Entry) *Generator {
	return &Generator{store: store, llm: completer, recorder: recorder, log: log}
}

// Generate creates the question for segmentID unless one already exists. On
// success the segment is marked completed; on any failure it is marked error
// with the failure message and the error is returned.
func (g *Generator) Generate(ctx context.Context, segmentID, content, creatorID string) error {
	log := g.log.WithField("segment_id", segmentID)

	exists, err := g.store.QuestionExists(ctx, segmentID)
	if err != nil {
		return g.fail(ctx, log, segmentID, creatorID, fmt.Errorf("check existing question: %w", err))
	}
	if exists {
		log.Debug("Question already exists, skipping generation")
		g.record(OutcomeSkipped)
		return nil
	}

	output, err := g.llm.Complete(ctx, Messages(content))
	if err != nil {
		return g.fail(ctx, log, segmentID, creatorID, err)
	}

	parsed, err := Parse(output)
	if err != nil {
		log.WithField("output", output).Warn("Language model returned malformed question")
		return g.fail(ctx, log, segmentID, creatorID, err)
	}

	created, err := g.store.InsertQuestion(ctx, models.NewQuestion{
		SegmentID:     segmentID,
		QuestionText:  parsed.Question,
		OptionA:       parsed.OptionA,
		OptionB:       parsed.OptionB,
		OptionC:       parsed.OptionC,
		OptionD:       parsed.OptionD,
		CorrectAnswer: parsed.Correct,
		CreatorID:     creatorID,
		Status:        models.QuestionStatusActive,
	})
	if err != nil {
		return g.fail(ctx, log, segmentID, creatorID, fmt.Errorf("store question: %w", err))
	}
	if !created {
		// Lost a race with another run for the same segment.
		log.Info("Question inserted concurrently, keeping existing row")
		g.record(OutcomeSkipped)
		return nil
	}

	if err := g.store.UpdateSegmentStatus(ctx, segmentID, creatorID, models.SegmentStatusCompleted, nil); err != nil {
		log.WithError(err).Error("Failed to mark segment completed")
	}
	log.Info("Question generated")
	g.record(OutcomeCreated)
	return nil
}

// fail marks the segment errored. The write survives cancellation of ctx.
func (g *Generator) fail(ctx context.Context, log *logrus.Entry, segmentID, creatorID string, cause error) error {
	msg := cause.Error()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := g.store.UpdateSegmentStatus(writeCtx, segmentID, creatorID, models.SegmentStatusError, &msg); err != nil {
		log.WithError(err).Error("Failed to mark segment as errored")
	}
	log.WithError(cause).Error("Question generation failed")

	if apperr.Is(cause, apperr.MalformedGenerationOutput) {
		g.record(OutcomeMalformed)
	} else {
		g.record(OutcomeFailed)
	}
	return cause
}

func (g *Generator) record(outcome string) {
	if g.recorder != nil {
		g.recorder.QuestionOutcome(outcome)
	}
}
