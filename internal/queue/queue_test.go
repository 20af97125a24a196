package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/store"
	"github.com/ksandoe/quizmaker/internal/worker"
)

var sampleRequest = pipeline.Request{VideoID: "v1", URL: "https://youtu.be/x", CreatorID: "c1"}

func TestEncodeDecodeRequest(t *testing.T) {
	body, err := Encode(sampleRequest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_id":"v1","url":"https://youtu.be/x","creator_id":"c1"}`, string(body))

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, sampleRequest, got)
}

func TestDecodeRejectsBadBodies(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"video_id":"v1","url":"u"}`} {
		_, err := Decode([]byte(body))
		require.Error(t, err, body)
		assert.True(t, apperr.Is(err, apperr.InvalidInput), body)
	}
}

type fakeSubmitter struct {
	mu   sync.Mutex
	err  error
	jobs []worker.Job
}

func (s *fakeSubmitter) Submit(job worker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type runnerFunc func(ctx context.Context, req pipeline.Request) error

func (f runnerFunc) Run(ctx context.Context, req pipeline.Request) error { return f(ctx, req) }

func TestLocalPublisherSubmitsJob(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	sub := &fakeSubmitter{}
	var ran pipeline.Request
	pub := NewLocalPublisher(sub, runnerFunc(func(_ context.Context, r pipeline.Request) error {
		ran = r
		return nil
	}), logger.WithField("test", true))

	require.NoError(t, pub.Publish(context.Background(), sampleRequest))
	require.Len(t, sub.jobs, 1)
	require.NoError(t, sub.jobs[0].Execute(context.Background()))
	assert.Equal(t, sampleRequest, ran)

	sub.err = worker.ErrQueueFull
	assert.ErrorIs(t, pub.Publish(context.Background(), sampleRequest), worker.ErrQueueFull)
}

type ackCall struct {
	kind    string
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	calls []ackCall
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{kind: "ack"})
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{kind: "nack", requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ackCall{kind: "reject", requeue: requeue})
	return nil
}

func newTestConsumer(sub Submitter, runner runnerFunc) *AMQPConsumer {
	logger, _ := logtest.NewNullLogger()
	c := NewAMQPConsumer(nil, DefaultQueueName, 2, sub, runner, logger.WithField("test", true))
	c.RetryDelay = time.Millisecond
	return c
}

func TestConsumerAcksAfterRun(t *testing.T) {
	sub := &fakeSubmitter{}
	ack := &fakeAcknowledger{}
	c := newTestConsumer(sub, func(context.Context, pipeline.Request) error {
		assert.Empty(t, ack.calls, "must not ack before the run finishes")
		return nil
	})

	body, _ := Encode(sampleRequest)
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body, DeliveryTag: 7})
	require.Len(t, sub.jobs, 1)
	assert.Equal(t, "delivery-7", sub.jobs[0].ID())
	assert.Empty(t, ack.calls)

	require.NoError(t, sub.jobs[0].Execute(context.Background()))
	assert.Equal(t, []ackCall{{kind: "ack"}}, ack.calls)
}

func TestConsumerAcksFailedAndRedeliveredRuns(t *testing.T) {
	for _, runErr := range []error{
		apperr.New(apperr.Download, "Failed to download video: boom"),
		apperr.New(apperr.Conflict, "video v1 is completed, not pending"),
	} {
		sub := &fakeSubmitter{}
		ack := &fakeAcknowledger{}
		c := newTestConsumer(sub, func(context.Context, pipeline.Request) error { return runErr })

		body, _ := Encode(sampleRequest)
		c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body, MessageId: "m1"})
		require.Len(t, sub.jobs, 1)
		_ = sub.jobs[0].Execute(context.Background())
		assert.Equal(t, []ackCall{{kind: "ack"}}, ack.calls)
	}
}

func TestConsumerDropsUndecodableMessage(t *testing.T) {
	sub := &fakeSubmitter{}
	ack := &fakeAcknowledger{}
	c := newTestConsumer(sub, nil)

	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("garbage")})
	assert.Empty(t, sub.jobs)
	assert.Equal(t, []ackCall{{kind: "nack", requeue: false}}, ack.calls)
}

func TestConsumerRequeuesWhenPoolFull(t *testing.T) {
	sub := &fakeSubmitter{err: worker.ErrQueueFull}
	ack := &fakeAcknowledger{}
	c := newTestConsumer(sub, nil)

	body, _ := Encode(sampleRequest)
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})
	assert.Equal(t, []ackCall{{kind: "nack", requeue: true}}, ack.calls)
}

func TestFailDroppedMarksQueuedVideosErrored(t *testing.T) {
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	log := logger.WithField("test", true)
	st := store.NewMemoryStore()

	newVideo := func() pipeline.Request {
		v, err := st.CreateVideo(ctx, models.NewVideo{URL: "https://youtu.be/x", Title: "https://youtu.be/x", CreatorID: "c1"})
		require.NoError(t, err)
		return pipeline.Request{VideoID: v.VideoID, URL: v.URL, CreatorID: "c1"}
	}
	running, queued := newVideo(), newVideo()

	d := worker.NewDispatcher(1, 4, log)
	d.OnDrop = FailDropped(st, log)
	d.Run(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	pub := NewLocalPublisher(d, runnerFunc(func(_ context.Context, r pipeline.Request) error {
		if r.VideoID == running.VideoID {
			close(started)
			<-release
		}
		return nil
	}), log)

	require.NoError(t, pub.Publish(ctx, running))
	<-started
	require.NoError(t, pub.Publish(ctx, queued))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	d.Stop()

	v, err := st.GetVideo(ctx, queued.VideoID, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusError, v.Status)
	require.NotNil(t, v.ErrorMessage)
	assert.Equal(t, "Failed to enqueue video: shutdown", *v.ErrorMessage)

	v, err = st.GetVideo(ctx, running.VideoID, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPending, v.Status, "the running job is left to the runner")
}
