// Package pipeline runs one video through download, transcription,
// segmentation and question generation, recording progress on the video row.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/segment"
	"github.com/ksandoe/quizmaker/internal/transcribe"
	"github.com/ksandoe/quizmaker/internal/ytdlp"
)

// Error message prefixes written to videos.error_message.
const (
	PrefixDownload      = "Failed to download video: "
	PrefixTranscribe    = "Failed to transcribe audio: "
	PrefixSegment       = "Failed to create segments: "
	PrefixUpdateRecord  = "Failed to update video record: "
	PrefixStoreSegments = "Failed to store segments: "
	PrefixUpdateStatus  = "Failed to update video status: "
	PrefixEnqueue       = "Failed to enqueue video: "
)

// Stage names used for logging and metrics.
const (
	StageDownload   = "download"
	StageTranscribe = "transcribe"
	StageSegment    = "segment"
	StageQuestions  = "questions"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "error"
	OutcomeSkipped   = "skipped"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetVideo(ctx context.Context, videoID, creatorID string) (models.Video, error)
	UpdateVideo(ctx context.Context, videoID, creatorID string, patch models.VideoPatch) error
	// ClaimVideo moves a pending video to downloading in one conditional
	// write and returns apperr.Conflict when the video is no longer pending.
	ClaimVideo(ctx context.Context, videoID, creatorID string) error
	InsertSegments(ctx context.Context, segs []models.NewSegment) ([]models.Segment, error)
}

// Downloader fetches the audio track of a URL into dir.
type Downloader interface {
	FetchAudio(ctx context.Context, url, dir string) (ytdlp.Audio, error)
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error)
}

// QuestionGenerator creates the question for one segment.
type QuestionGenerator interface {
	Generate(ctx context.Context, segmentID, content, creatorID string) error
}

// Recorder receives timings and outcomes. May be nil.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(outcome string)
}

// Request identifies one pipeline run.
type Request struct {
	VideoID   string `json:"video_id"`
	URL       string `json:"url"`
	CreatorID string `json:"creator_id"`
}

// Config tunes the orchestrator.
type Config struct {
	// WorkDir is the parent of the per-video scratch directories.
	WorkDir string
	// QuestionConcurrency bounds parallel question generation; values below
	// two run segments one after another.
	QuestionConcurrency int
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	cfg         Config
	store       Store
	downloader  Downloader
	transcriber Transcriber
	questions   QuestionGenerator
	recorder    Recorder
	log         *logrus.Entry
}

// New creates an Orchestrator.
func New(cfg Config, store Store, downloader Downloader, transcriber Transcriber, questions QuestionGenerator, recorder Recorder, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		downloader:  downloader,
		transcriber: transcriber,
		questions:   questions,
		recorder:    recorder,
		log:         log,
	}
}

// Run processes req to completion. Progress and failure are reported through
// the video row; the returned error is for the caller's logs and ack logic.
// A video that is no longer pending, or that another run claims first,
// yields an apperr.Conflict error and is left untouched.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	log := o.log.WithFields(logrus.Fields{"video_id": req.VideoID, "creator_id": req.CreatorID})

	video, err := o.store.GetVideo(ctx, req.VideoID, req.CreatorID)
	if err != nil {
		o.finish(OutcomeFailed)
		return fmt.Errorf("load video: %w", err)
	}
	if video.Status != models.VideoStatusPending {
		o.finish(OutcomeSkipped)
		return apperr.New(apperr.Conflict, fmt.Sprintf("video %s is %s, not pending", req.VideoID, video.Status))
	}
	if video.URL != "" {
		req.URL = video.URL
	}
	if err := o.store.ClaimVideo(ctx, req.VideoID, req.CreatorID); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			o.finish(OutcomeSkipped)
			return err
		}
		o.finish(OutcomeFailed)
		return o.fail(ctx, log, req, PrefixUpdateStatus, err)
	}

	if err := o.run(ctx, log, req, video); err != nil {
		o.finish(OutcomeFailed)
		return err
	}
	o.finish(OutcomeCompleted)
	log.Info("Video processing completed")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, log *logrus.Entry, req Request, video models.Video) error {
	dir, release, err := acquireWorkDir(o.cfg.WorkDir, req.VideoID, log)
	if err != nil {
		return o.fail(ctx, log, req, PrefixDownload, err)
	}
	defer release()

	// Download. Run has already claimed the video as downloading.
	start := time.Now()
	audio, err := o.downloader.FetchAudio(ctx, req.URL, dir)
	o.observe(StageDownload, start)
	if err != nil {
		return o.fail(ctx, log, req, PrefixDownload, err)
	}
	log.WithField("title", audio.Metadata.Title).Info("Audio ready")

	// Transcribe.
	if err := o.setStatus(ctx, req, models.VideoStatusTranscribing); err != nil {
		return o.fail(ctx, log, req, PrefixUpdateStatus, err)
	}
	start = time.Now()
	transcript, err := o.transcriber.Transcribe(ctx, audio.Path)
	o.observe(StageTranscribe, start)
	if err != nil {
		return o.fail(ctx, log, req, PrefixTranscribe, err)
	}

	// Segment and persist.
	start = time.Now()
	chunks, err := segment.Split(transcript.Text, video.MaxSegments)
	if err != nil {
		o.observe(StageSegment, start)
		return o.fail(ctx, log, req, PrefixSegment, err)
	}

	processing := models.VideoStatusProcessing
	actual := len(chunks)
	patch := models.VideoPatch{
		Status:          &processing,
		Transcript:      &transcript.Text,
		WordCount:       &transcript.WordCount,
		DurationSeconds: audio.Metadata.DurationSeconds,
		MaxSegments:     &actual,
	}
	if audio.Metadata.Title != "" {
		patch.Title = &audio.Metadata.Title
	}
	if err := o.store.UpdateVideo(ctx, req.VideoID, req.CreatorID, patch); err != nil {
		o.observe(StageSegment, start)
		return o.fail(ctx, log, req, PrefixUpdateRecord, err)
	}

	rows := make([]models.NewSegment, len(chunks))
	for i, c := range chunks {
		rows[i] = models.NewSegment{
			VideoID:   req.VideoID,
			Position:  c.Position,
			Content:   c.Content,
			WordCount: c.WordCount,
			CreatorID: req.CreatorID,
			Status:    models.SegmentStatusPending,
		}
	}
	stored, err := o.store.InsertSegments(ctx, rows)
	o.observe(StageSegment, start)
	if err != nil {
		return o.fail(ctx, log, req, PrefixStoreSegments, err)
	}
	log.WithFields(logrus.Fields{"segments": len(stored), "word_count": transcript.WordCount}).Info("Segments stored")

	if err := o.setStatus(ctx, req, models.VideoStatusSegmented); err != nil {
		return o.fail(ctx, log, req, PrefixUpdateStatus, err)
	}

	// Questions are best-effort per segment.
	start = time.Now()
	failed := o.generateQuestions(ctx, log, stored)
	o.observe(StageQuestions, start)
	if failed > 0 {
		log.WithField("failed_segments", failed).Warn("Some segments have no question")
	}

	if err := o.setStatus(ctx, req, models.VideoStatusCompleted); err != nil {
		return o.fail(ctx, log, req, PrefixUpdateStatus, err)
	}
	return nil
}

// generateQuestions returns how many segments failed. A failure never stops
// the other segments.
func (o *Orchestrator) generateQuestions(ctx context.Context, log *logrus.Entry, segs []models.Segment) int {
	failed := make([]bool, len(segs))

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.QuestionConcurrency))
	for i, seg := range segs {
		g.Go(func() error {
			if err := o.questions.Generate(ctx, seg.SegmentID, seg.Content, seg.CreatorID); err != nil {
				log.WithError(err).WithField("segment_id", seg.SegmentID).Warn("Question generation failed for segment")
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

func (o *Orchestrator) setStatus(ctx context.Context, req Request, status models.VideoStatus) error {
	o.log.WithFields(logrus.Fields{"video_id": req.VideoID, "status": status}).Debug("Updating video status")
	return o.store.UpdateVideo(ctx, req.VideoID, req.CreatorID, models.StatusPatch(status))
}

// fail records the error on the video and returns it with the stage prefix.
// The write survives cancellation of ctx.
func (o *Orchestrator) fail(ctx context.Context, log *logrus.Entry, req Request, prefix string, cause error) error {
	err := fmt.Errorf("%s%w", prefix, cause)
	log.WithError(err).Error("Pipeline stage failed")

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if uerr := o.store.UpdateVideo(writeCtx, req.VideoID, req.CreatorID, models.ErrorPatch(err.Error())); uerr != nil {
		log.WithError(uerr).Error("Failed to record video error")
	}
	return err
}

func (o *Orchestrator) observe(stage string, start time.Time) {
	if o.recorder != nil {
		o.recorder.ObserveStage(stage, time.Since(start))
	}
}

func (o *Orchestrator) finish(outcome string) {
	if o.recorder != nil {
		o.recorder.RunFinished(outcome)
	}
}
