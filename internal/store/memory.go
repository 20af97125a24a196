package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
)

// MemoryStore keeps rows in process memory. It backs STORE_BACKEND=memory and
// the tests, and rejects video status changes that break the pipeline order.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	videos    map[string]*models.Video
	history   map[string][]models.VideoStatus
	segments  map[string]*models.Segment
	questions map[string]*models.Question // keyed by segment_id
	responses map[string]*models.Response
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		videos:    map[string]*models.Video{},
		history:   map[string][]models.VideoStatus{},
		segments:  map[string]*models.Segment{},
		questions: map[string]*models.Question{},
		responses: map[string]*models.Response{},
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateVideo(_ context.Context, nv models.NewVideo) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v := &models.Video{
		VideoID:   uuid.NewString(),
		URL:       nv.URL,
		Title:     nv.Title,
		CreatorID: nv.CreatorID,
		Status:    nv.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v.Status == "" {
		v.Status = models.VideoStatusPending
	}
	if nv.MaxSegments != nil {
		n := *nv.MaxSegments
		v.MaxSegments = &n
	}
	s.videos[v.VideoID] = v
	s.history[v.VideoID] = []models.VideoStatus{v.Status}
	return *v, nil
}

func (s *MemoryStore) GetVideo(_ context.Context, videoID, creatorID string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok || v.CreatorID != creatorID {
		return models.Video{}, apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	return *v, nil
}

func (s *MemoryStore) UpdateVideo(_ context.Context, videoID, creatorID string, patch models.VideoPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok || v.CreatorID != creatorID {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	if patch.Status != nil && *patch.Status != v.Status {
		if !v.Status.CanTransition(*patch.Status) {
			return apperr.New(apperr.Conflict, fmt.Sprintf("illegal status change %s -> %s", v.Status, *patch.Status))
		}
		s.history[videoID] = append(s.history[videoID], *patch.Status)
	}
	patch.Apply(v, s.now())
	return nil
}

func (s *MemoryStore) ClaimVideo(_ context.Context, videoID, creatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok || v.CreatorID != creatorID {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	if v.Status != models.VideoStatusPending {
		return apperr.New(apperr.Conflict, fmt.Sprintf("video %s is %s, not pending", videoID, v.Status))
	}
	models.StatusPatch(models.VideoStatusDownloading).Apply(v, s.now())
	s.history[videoID] = append(s.history[videoID], models.VideoStatusDownloading)
	return nil
}

func (s *MemoryStore) ListVideos(_ context.Context, creatorID string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Video{}
	for _, v := range s.videos {
		if v.CreatorID == creatorID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteVideo(_ context.Context, videoID, creatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok || v.CreatorID != creatorID {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	for id, seg := range s.segments {
		if seg.VideoID != videoID {
			continue
		}
		if q, ok := s.questions[id]; ok {
			for rid, r := range s.responses {
				if r.QuestionID == q.QuestionID {
					delete(s.responses, rid)
				}
			}
			delete(s.questions, id)
		}
		delete(s.segments, id)
	}
	delete(s.videos, videoID)
	delete(s.history, videoID)
	return nil
}

func (s *MemoryStore) InsertSegments(_ context.Context, segs []models.NewSegment) ([]models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]models.Segment, 0, len(segs))
	for _, ns := range segs {
		seg := &models.Segment{
			SegmentID: uuid.NewString(),
			VideoID:   ns.VideoID,
			Position:  ns.Position,
			Content:   ns.Content,
			WordCount: ns.WordCount,
			CreatorID: ns.CreatorID,
			Status:    ns.Status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.segments[seg.SegmentID] = seg
		out = append(out, *seg)
	}
	return out, nil
}

func (s *MemoryStore) ListSegments(_ context.Context, videoID, creatorID string) ([]models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Segment
	for _, seg := range s.segments {
		if seg.VideoID == videoID && seg.CreatorID == creatorID {
			out = append(out, *seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) UpdateSegmentStatus(_ context.Context, segmentID, creatorID string, status models.SegmentStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[segmentID]
	if !ok || seg.CreatorID != creatorID {
		return apperr.New(apperr.NotFound, fmt.Sprintf("segment %s not found", segmentID))
	}
	seg.Status = status
	if errMsg != nil {
		msg := *errMsg
		seg.ErrorMessage = &msg
	}
	seg.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) QuestionExists(_ context.Context, segmentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.questions[segmentID]
	return ok, nil
}

func (s *MemoryStore) InsertQuestion(_ context.Context, nq models.NewQuestion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[nq.SegmentID]; ok {
		return false, nil
	}
	now := s.now()
	s.questions[nq.SegmentID] = &models.Question{
		QuestionID:    uuid.NewString(),
		SegmentID:     nq.SegmentID,
		QuestionText:  nq.QuestionText,
		OptionA:       nq.OptionA,
		OptionB:       nq.OptionB,
		OptionC:       nq.OptionC,
		OptionD:       nq.OptionD,
		CorrectAnswer: nq.CorrectAnswer,
		CreatorID:     nq.CreatorID,
		Status:        nq.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return true, nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, segmentIDs []string, creatorID string) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Question
	for _, id := range segmentIDs {
		if q, ok := s.questions[id]; ok && q.CreatorID == creatorID {
			out = append(out, *q)
		}
	}
	return out, nil
}

// question finds a question by id; callers hold s.mu.
func (s *MemoryStore) question(questionID, creatorID string) (*models.Question, error) {
	for _, q := range s.questions {
		if q.QuestionID == questionID && q.CreatorID == creatorID {
			return q, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, fmt.Sprintf("question %s not found", questionID))
}

func (s *MemoryStore) GetQuestion(_ context.Context, questionID, creatorID string) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.question(questionID, creatorID)
	if err != nil {
		return models.Question{}, err
	}
	return *q, nil
}

func (s *MemoryStore) UpdateQuestion(_ context.Context, questionID, creatorID string, patch models.QuestionPatch) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.question(questionID, creatorID)
	if err != nil {
		return models.Question{}, err
	}
	patch.Apply(q, s.now())
	return *q, nil
}

func (s *MemoryStore) CreateResponse(_ context.Context, nr models.NewResponse) (models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.question(nr.QuestionID, nr.CreatorID); err != nil {
		return models.Response{}, err
	}
	now := s.now()
	r := &models.Response{
		ResponseID:     uuid.NewString(),
		QuestionID:     nr.QuestionID,
		UserID:         nr.UserID,
		SelectedAnswer: nr.SelectedAnswer,
		IsCorrect:      nr.IsCorrect,
		CreatorID:      nr.CreatorID,
		Status:         nr.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.responses[r.ResponseID] = r
	return *r, nil
}

func (s *MemoryStore) ListResponses(_ context.Context, questionID, creatorID string) ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Response{}
	for _, r := range s.responses {
		if r.QuestionID == questionID && r.CreatorID == creatorID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// StatusHistory returns every status a video has held, oldest first.
func (s *MemoryStore) StatusHistory(videoID string) []models.VideoStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VideoStatus(nil), s.history[videoID]...)
}
