package questions

import (
	"context"
	"errors"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/llm"
	"github.com/ksandoe/quizmaker/internal/models"
)

type segmentUpdate struct {
	status models.SegmentStatus
	errMsg *string
}

type fakeStore struct {
	mu        sync.Mutex
	questions map[string]models.NewQuestion
	updates   map[string][]segmentUpdate
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		questions: map[string]models.NewQuestion{},
		updates:   map[string][]segmentUpdate{},
	}
}

func (s *fakeStore) QuestionExists(_ context.Context, segmentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.questions[segmentID]
	return ok, nil
}

func (s *fakeStore) InsertQuestion(_ context.Context, q models.NewQuestion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.questions[q.SegmentID]; ok {
		return false, nil
	}
	s.questions[q.SegmentID] = q
	return true, nil
}

func (s *fakeStore) UpdateSegmentStatus(ctx context.Context, segmentID, _ string, status models.SegmentStatus, errMsg *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[segmentID] = append(s.updates[segmentID], segmentUpdate{status: status, errMsg: errMsg})
	return nil
}

type fakeCompleter struct {
	output string
	err    error
	calls  int
}

func (c *fakeCompleter) Complete(_ context.Context, _ []llm.Message) (string, error) {
	c.calls++
	return c.output, c.err
}

type countingRecorder struct{ outcomes []string }

func (r *countingRecorder) QuestionOutcome(o string) { r.outcomes = append(r.outcomes, o) }

func newTestGenerator(store Store, c Completer, r Recorder) *Generator {
	logger, _ := logtest.NewNullLogger()
	return NewGenerator(store, c, r, logger.WithField("test", true))
}

func TestGenerateStoresQuestionAndCompletesSegment(t *testing.T) {
	store := newFakeStore()
	rec := &countingRecorder{}
	g := newTestGenerator(store, &fakeCompleter{output: wellFormed}, rec)

	require.NoError(t, g.Generate(context.Background(), "seg-1", "content", "user-1"))

	q := store.questions["seg-1"]
	assert.Equal(t, "What is the capital of France?", q.QuestionText)
	assert.Equal(t, models.AnswerA, q.CorrectAnswer)
	assert.Equal(t, "user-1", q.CreatorID)
	assert.Equal(t, models.QuestionStatusActive, q.Status)
	require.Len(t, store.updates["seg-1"], 1)
	assert.Equal(t, models.SegmentStatusCompleted, store.updates["seg-1"][0].status)
	assert.Equal(t, []string{OutcomeCreated}, rec.outcomes)
}

func TestGenerateIsIdempotentPerSegment(t *testing.T) {
	store := newFakeStore()
	llmFake := &fakeCompleter{output: wellFormed}
	g := newTestGenerator(store, llmFake, nil)

	require.NoError(t, g.Generate(context.Background(), "seg-1", "content", "user-1"))
	require.NoError(t, g.Generate(context.Background(), "seg-1", "content", "user-1"))

	assert.Len(t, store.questions, 1)
	assert.Equal(t, 1, llmFake.calls, "second call must not reach the language model")
}

func TestGenerateMalformedOutputMarksSegmentError(t *testing.T) {
	store := newFakeStore()
	rec := &countingRecorder{}
	g := newTestGenerator(store, &fakeCompleter{output: "Q: q\nA: a\nB: b\nC: c\nD: d"}, rec)

	err := g.Generate(context.Background(), "seg-1", "content", "user-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.MalformedGenerationOutput))

	assert.Empty(t, store.questions)
	require.Len(t, store.updates["seg-1"], 1)
	upd := store.updates["seg-1"][0]
	assert.Equal(t, models.SegmentStatusError, upd.status)
	require.NotNil(t, upd.errMsg)
	assert.Contains(t, *upd.errMsg, "invalid question format")
	assert.Equal(t, []string{OutcomeMalformed}, rec.outcomes)
}

func TestGenerateProviderFailureMarksSegmentError(t *testing.T) {
	store := newFakeStore()
	rec := &countingRecorder{}
	g := newTestGenerator(store, &fakeCompleter{err: apperr.New(apperr.Generation, "chat completion http 500")}, rec)

	err := g.Generate(context.Background(), "seg-1", "content", "user-1")
	require.Error(t, err)

	upd := store.updates["seg-1"][0]
	assert.Equal(t, models.SegmentStatusError, upd.status)
	assert.Equal(t, "chat completion http 500", *upd.errMsg)
	assert.Equal(t, []string{OutcomeFailed}, rec.outcomes)
}

func TestGenerateInsertFailureMarksSegmentError(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection reset")
	g := newTestGenerator(store, &fakeCompleter{output: wellFormed}, nil)

	err := g.Generate(context.Background(), "seg-1", "content", "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store question: connection reset")
	assert.Equal(t, models.SegmentStatusError, store.updates["seg-1"][0].status)
}

func TestGenerateInsertRaceIsNotAnError(t *testing.T) {
	store := newFakeStore()
	racer := &racingStore{fakeStore: store}
	g := newTestGenerator(racer, &fakeCompleter{output: wellFormed}, nil)

	require.NoError(t, g.Generate(context.Background(), "seg-1", "content", "user-1"))
	assert.Empty(t, store.updates["seg-1"], "segment status belongs to the run that won the insert")
}

// racingStore reports no existing question but then finds one on insert.
type racingStore struct{ *fakeStore }

func (r *racingStore) QuestionExists(context.Context, string) (bool, error) { return false, nil }

func (r *racingStore) InsertQuestion(context.Context, models.NewQuestion) (bool, error) {
	return false, nil
}

func TestGenerateMarksSegmentErrorAfterCancellation(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newTestGenerator(store, &fakeCompleter{err: context.Canceled}, nil)

	err := g.Generate(ctx, "seg-1", "content", "user-1")
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, store.updates["seg-1"], 1)
	assert.Equal(t, models.SegmentStatusError, store.updates["seg-1"][0].status)
	require.NotNil(t, store.updates["seg-1"][0].errMsg)
	assert.Equal(t, "context canceled", *store.updates["seg-1"][0].errMsg)
}
