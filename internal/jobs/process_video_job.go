package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/pipeline"
)

// JobTypeProcessVideo identifies the only job this service runs.
const JobTypeProcessVideo = "PROCESS_VIDEO"

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// ProcessVideoJob runs the video pipeline for one request.
type ProcessVideoJob struct {
	JobID   string
	Request pipeline.Request

	runner Runner
	onDone func(err error)
	log    *logrus.Entry
}

// NewProcessVideoJob creates a ProcessVideoJob. onDone, when set, is called
// once after the run with its result; the queue consumer acks from it.
func NewProcessVideoJob(jobID string, req pipeline.Request, runner Runner, onDone func(err error), log *logrus.Entry) *ProcessVideoJob {
	return &ProcessVideoJob{
		JobID:   jobID,
		Request: req,
		runner:  runner,
		onDone:  onDone,
		log:     log,
	}
}

// ID returns the unique identifier of the job.
func (j *ProcessVideoJob) ID() string {
	return j.JobID
}

// Type returns the type of the job.
func (j *ProcessVideoJob) Type() string {
	return JobTypeProcessVideo
}

// Payload returns the input parameters of the job for logging.
func (j *ProcessVideoJob) Payload() interface{} {
	return j.Request
}

// Execute runs the pipeline. A video that already left pending is logged and
// treated as done, so redelivered messages are dropped.
func (j *ProcessVideoJob) Execute(ctx context.Context) error {
	log := j.log.WithFields(logrus.Fields{"job_id": j.JobID, "video_id": j.Request.VideoID})
	log.Info("Executing ProcessVideoJob")
	start := time.Now()

	err := j.runner.Run(ctx, j.Request)
	if j.onDone != nil {
		j.onDone(err)
	}

	if apperr.Is(err, apperr.Conflict) {
		log.WithError(err).Info("Video already processed, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("took_ms", time.Since(start).Milliseconds()).Info("ProcessVideoJob completed successfully")
	return nil
}
