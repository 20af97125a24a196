// Package store persists videos, segments and questions. Every read and
// write is scoped by creator_id.
package store

import (
	"context"

	"github.com/ksandoe/quizmaker/internal/models"
)

// Store is the full persistence contract used by the pipeline and the API.
type Store interface {
	CreateVideo(ctx context.Context, v models.NewVideo) (models.Video, error)
	// GetVideo returns an apperr.NotFound error when no row matches.
	GetVideo(ctx context.Context, videoID, creatorID string) (models.Video, error)
	UpdateVideo(ctx context.Context, videoID, creatorID string, patch models.VideoPatch) error
	// ClaimVideo moves a pending video to downloading in one conditional
	// write. It returns an apperr.Conflict error when the video is no longer
	// pending, so only one run can own a video.
	ClaimVideo(ctx context.Context, videoID, creatorID string) error
	// ListVideos returns the creator's videos, newest first.
	ListVideos(ctx context.Context, creatorID string) ([]models.Video, error)
	// DeleteVideo removes a video with its segments, questions and responses.
	DeleteVideo(ctx context.Context, videoID, creatorID string) error

	// InsertSegments writes the batch in one call and returns the rows with
	// their generated ids, in input order.
	InsertSegments(ctx context.Context, segs []models.NewSegment) ([]models.Segment, error)
	// ListSegments returns a video's segments ordered by position.
	ListSegments(ctx context.Context, videoID, creatorID string) ([]models.Segment, error)
	UpdateSegmentStatus(ctx context.Context, segmentID, creatorID string, status models.SegmentStatus, errMsg *string) error

	QuestionExists(ctx context.Context, segmentID string) (bool, error)
	// InsertQuestion reports false when a question for the segment already
	// exists; in that case nothing is written and no error is returned.
	InsertQuestion(ctx context.Context, q models.NewQuestion) (bool, error)
	ListQuestions(ctx context.Context, segmentIDs []string, creatorID string) ([]models.Question, error)
	GetQuestion(ctx context.Context, questionID, creatorID string) (models.Question, error)
	UpdateQuestion(ctx context.Context, questionID, creatorID string, patch models.QuestionPatch) (models.Question, error)

	CreateResponse(ctx context.Context, r models.NewResponse) (models.Response, error)
	ListResponses(ctx context.Context, questionID, creatorID string) ([]models.Response, error)
}

// Table names shared by the PostgREST and SQL backends.
const (
	videosTable    = "videos"
	segmentsTable  = "segments"
	questionsTable = "questions"
	responsesTable = "responses"
)
