package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
)

// TableClient builds PostgREST queries. Both *supabase.Client and
// *postgrest.Client satisfy it.
type TableClient interface {
	From(table string) *postgrest.QueryBuilder
}

// SupabaseStore talks to the Supabase REST API through postgrest-go. The
// client takes no context, so ctx is only checked before each call.
type SupabaseStore struct {
	db  TableClient
	log *logrus.Entry
	now func() time.Time
}

// NewSupabaseStore wraps an initialized client.
func NewSupabaseStore(db TableClient, log *logrus.Entry) *SupabaseStore {
	return &SupabaseStore{db: db, log: log, now: time.Now}
}

var _ Store = (*SupabaseStore)(nil)

func (s *SupabaseStore) CreateVideo(ctx context.Context, nv models.NewVideo) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	body, _, err := s.db.From(videosTable).
		Insert(nv, false, "", "representation", "").
		Execute()
	if err != nil {
		return models.Video{}, apperr.E(apperr.Storage, "insert video", err)
	}

	var rows []models.Video
	if err := json.Unmarshal(body, &rows); err != nil {
		return models.Video{}, apperr.E(apperr.Storage, "decode inserted video", err)
	}
	if len(rows) == 0 {
		return models.Video{}, apperr.New(apperr.Storage, "no record returned after video insert")
	}
	s.log.WithField("video_id", rows[0].VideoID).Info("Video record created")
	return rows[0], nil
}

func (s *SupabaseStore) GetVideo(ctx context.Context, videoID, creatorID string) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	var rows []models.Video
	body, _, err := s.db.From(videosTable).
		Select("*", "", false).
		Eq("video_id", videoID).
		Eq("creator_id", creatorID).
		Limit(1, "").
		Execute()
	if err != nil {
		return models.Video{}, apperr.E(apperr.Storage, fmt.Sprintf("fetch video %s", videoID), err)
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return models.Video{}, apperr.E(apperr.Storage, "decode video", err)
	}
	if len(rows) == 0 {
		return models.Video{}, apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	return rows[0], nil
}

func (s *SupabaseStore) UpdateVideo(ctx context.Context, videoID, creatorID string, patch models.VideoPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := s.db.From(videosTable).
		Update(patch.Columns(s.now()), "representation", "").
		Eq("video_id", videoID).
		Eq("creator_id", creatorID).
		Execute()
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("update video %s", videoID), err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	return nil
}

// ClaimVideo filters on status=pending so concurrent claims race inside
// PostgREST; an empty representation means no row matched.
func (s *SupabaseStore) ClaimVideo(ctx context.Context, videoID, creatorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := s.db.From(videosTable).
		Update(models.StatusPatch(models.VideoStatusDownloading).Columns(s.now()), "representation", "").
		Eq("video_id", videoID).
		Eq("creator_id", creatorID).
		Eq("status", string(models.VideoStatusPending)).
		Execute()
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("claim video %s", videoID), err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return apperr.E(apperr.Storage, "decode claimed video", err)
	}
	if len(rows) > 0 {
		return nil
	}
	v, err := s.GetVideo(ctx, videoID, creatorID)
	if err != nil {
		return err
	}
	return apperr.New(apperr.Conflict, fmt.Sprintf("video %s is %s, not pending", videoID, v.Status))
}

func (s *SupabaseStore) ListVideos(ctx context.Context, creatorID string) ([]models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := []models.Video{}
	_, err := s.db.From(videosTable).
		Select("*", "", false).
		Eq("creator_id", creatorID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.E(apperr.Storage, "list videos", err)
	}
	return rows, nil
}

// DeleteVideo removes the video row; segments, questions and responses
// follow through the ON DELETE CASCADE chain of schema.sql.
func (s *SupabaseStore) DeleteVideo(ctx context.Context, videoID, creatorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := s.db.From(videosTable).
		Delete("representation", "").
		Eq("video_id", videoID).
		Eq("creator_id", creatorID).
		Execute()
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("delete video %s", videoID), err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	s.log.WithField("video_id", videoID).Info("Video deleted")
	return nil
}

func (s *SupabaseStore) InsertSegments(ctx context.Context, segs []models.NewSegment) ([]models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, nil
	}
	body, _, err := s.db.From(segmentsTable).
		Insert(segs, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, apperr.E(apperr.Storage, "insert segments", err)
	}

	var rows []models.Segment
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, apperr.E(apperr.Storage, "decode inserted segments", err)
	}
	if len(rows) != len(segs) {
		return nil, apperr.New(apperr.Storage, fmt.Sprintf("inserted %d segments, got %d back", len(segs), len(rows)))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

func (s *SupabaseStore) ListSegments(ctx context.Context, videoID, creatorID string) ([]models.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []models.Segment
	_, err := s.db.From(segmentsTable).
		Select("*", "", false).
		Eq("video_id", videoID).
		Eq("creator_id", creatorID).
		Order("position", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.E(apperr.Storage, fmt.Sprintf("list segments of video %s", videoID), err)
	}
	return rows, nil
}

func (s *SupabaseStore) UpdateSegmentStatus(ctx context.Context, segmentID, creatorID string, status models.SegmentStatus, errMsg *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	updateData := map[string]interface{}{
		"status":     string(status),
		"updated_at": s.now(),
	}
	if errMsg != nil {
		updateData["error_message"] = *errMsg
	}
	_, _, err := s.db.From(segmentsTable).
		Update(updateData, "minimal", "").
		Eq("segment_id", segmentID).
		Eq("creator_id", creatorID).
		Execute()
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("update segment %s", segmentID), err)
	}
	return nil
}

func (s *SupabaseStore) QuestionExists(ctx context.Context, segmentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var rows []struct {
		QuestionID string `json:"question_id"`
	}
	_, err := s.db.From(questionsTable).
		Select("question_id", "", false).
		Eq("segment_id", segmentID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return false, apperr.E(apperr.Storage, fmt.Sprintf("check question for segment %s", segmentID), err)
	}
	return len(rows) > 0, nil
}

func (s *SupabaseStore) InsertQuestion(ctx context.Context, q models.NewQuestion) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, _, err := s.db.From(questionsTable).
		Insert(q, false, "", "minimal", "").
		Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, apperr.E(apperr.Storage, fmt.Sprintf("insert question for segment %s", q.SegmentID), err)
	}
	return true, nil
}

func (s *SupabaseStore) ListQuestions(ctx context.Context, segmentIDs []string, creatorID string) ([]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(segmentIDs) == 0 {
		return nil, nil
	}
	var rows []models.Question
	_, err := s.db.From(questionsTable).
		Select("*", "", false).
		In("segment_id", segmentIDs).
		Eq("creator_id", creatorID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.E(apperr.Storage, "list questions", err)
	}
	return rows, nil
}

func (s *SupabaseStore) GetQuestion(ctx context.Context, questionID, creatorID string) (models.Question, error) {
	if err := ctx.Err(); err != nil {
		return models.Question{}, err
	}
	var rows []models.Question
	_, err := s.db.From(questionsTable).
		Select("*", "", false).
		Eq("question_id", questionID).
		Eq("creator_id", creatorID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return models.Question{}, apperr.E(apperr.Storage, fmt.Sprintf("fetch question %s", questionID), err)
	}
	if len(rows) == 0 {
		return models.Question{}, apperr.New(apperr.NotFound, fmt.Sprintf("question %s not found", questionID))
	}
	return rows[0], nil
}

func (s *SupabaseStore) UpdateQuestion(ctx context.Context, questionID, creatorID string, patch models.QuestionPatch) (models.Question, error) {
	if err := ctx.Err(); err != nil {
		return models.Question{}, err
	}
	var rows []models.Question
	_, err := s.db.From(questionsTable).
		Update(patch.Columns(s.now()), "representation", "").
		Eq("question_id", questionID).
		Eq("creator_id", creatorID).
		ExecuteTo(&rows)
	if err != nil {
		return models.Question{}, apperr.E(apperr.Storage, fmt.Sprintf("update question %s", questionID), err)
	}
	if len(rows) == 0 {
		return models.Question{}, apperr.New(apperr.NotFound, fmt.Sprintf("question %s not found", questionID))
	}
	return rows[0], nil
}

func (s *SupabaseStore) CreateResponse(ctx context.Context, nr models.NewResponse) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}
	var rows []models.Response
	_, err := s.db.From(responsesTable).
		Insert(nr, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return models.Response{}, apperr.E(apperr.Storage, fmt.Sprintf("insert response for question %s", nr.QuestionID), err)
	}
	if len(rows) == 0 {
		return models.Response{}, apperr.New(apperr.Storage, "no record returned after response insert")
	}
	return rows[0], nil
}

func (s *SupabaseStore) ListResponses(ctx context.Context, questionID, creatorID string) ([]models.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := []models.Response{}
	_, err := s.db.From(responsesTable).
		Select("*", "", false).
		Eq("question_id", questionID).
		Eq("creator_id", creatorID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperr.E(apperr.Storage, fmt.Sprintf("list responses of question %s", questionID), err)
	}
	return rows, nil
}

// isUniqueViolation matches Postgres error 23505 as surfaced by PostgREST.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
