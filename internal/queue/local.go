package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/jobs"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/worker"
)

// DroppedMessage is recorded on videos whose job was still queued at shutdown.
const DroppedMessage = pipeline.PrefixEnqueue + "shutdown"

// VideoUpdater writes the video row.
type VideoUpdater interface {
	UpdateVideo(ctx context.Context, videoID, creatorID string, patch models.VideoPatch) error
}

// LocalPublisher submits runs straight to an in-process worker pool. Nothing
// survives a restart; use AMQP for at-least-once delivery.
type LocalPublisher struct {
	pool   Submitter
	runner jobs.Runner
	log    *logrus.Entry
}

// NewLocalPublisher creates a LocalPublisher.
func NewLocalPublisher(pool Submitter, runner jobs.Runner, log *logrus.Entry) *LocalPublisher {
	return &LocalPublisher{pool: pool, runner: runner, log: log}
}

// Publish fails with worker.ErrQueueFull when the pool has no room.
func (p *LocalPublisher) Publish(_ context.Context, req pipeline.Request) error {
	job := jobs.NewProcessVideoJob(uuid.NewString(), req, p.runner, nil, p.log)
	return p.pool.Submit(job)
}

// FailDropped returns a worker.Dispatcher OnDrop hook that marks the video of
// each unrun job as errored, so it does not stay pending forever.
func FailDropped(st VideoUpdater, log *logrus.Entry) func(worker.Job) {
	return func(job worker.Job) {
		pj, ok := job.(*jobs.ProcessVideoJob)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l := log.WithFields(logrus.Fields{"job_id": pj.ID(), "video_id": pj.Request.VideoID})
		if err := st.UpdateVideo(ctx, pj.Request.VideoID, pj.Request.CreatorID, models.ErrorPatch(DroppedMessage)); err != nil {
			l.WithError(err).Error("Failed to mark dropped video as errored")
			return
		}
		l.Warn("Marked dropped video as errored")
	}
}
