package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/store"
)

func seededQuestion(t *testing.T, st *store.MemoryStore, video models.Video) models.Question {
	t.Helper()
	ctx := context.Background()
	segs, err := st.ListSegments(ctx, video.VideoID, creator)
	require.NoError(t, err)
	ids := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.SegmentID
	}
	qs, err := st.ListQuestions(ctx, ids, creator)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	return qs[0]
}

func strPtr(s string) *string { return &s }

func TestListVideosNewestFirstAndScoped(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/api/v1/videos", "tok-1", CreateVideoRequest{URL: youtubeURL})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/videos", "tok-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body VideoListResponse
	decode(t, resp, &body)
	require.Len(t, body.Data, 2)
	assert.False(t, body.Data[0].CreatedAt.Before(body.Data[1].CreatedAt))

	resp = f.do(t, http.MethodGet, "/api/v1/videos", "tok-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var other VideoListResponse
	decode(t, resp, &other)
	assert.NotNil(t, other.Data)
	assert.Empty(t, other.Data)
}

func TestDeleteVideoRemovesQuiz(t *testing.T) {
	f := newFixture(t, nil)
	video := seedQuiz(t, f.store)
	q := seededQuestion(t, f.store, video)
	_, err := f.store.CreateResponse(context.Background(), models.Grade(q, "student", models.AnswerB))
	require.NoError(t, err)

	resp := f.do(t, http.MethodDelete, "/api/v1/videos/"+video.VideoID, "tok-2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/v1/videos/"+video.VideoID, "tok-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/videos/"+video.VideoID+"/quiz", "tok-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, err = f.store.GetQuestion(context.Background(), q.QuestionID, creator)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	rs, err := f.store.ListResponses(context.Background(), q.QuestionID, creator)
	require.NoError(t, err)
	assert.Empty(t, rs)

	resp = f.do(t, http.MethodDelete, "/api/v1/videos/not-a-uuid", "tok-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateQuestion(t *testing.T) {
	f := newFixture(t, nil)
	video := seedQuiz(t, f.store)
	q := seededQuestion(t, f.store, video)
	path := "/api/v1/questions/" + q.QuestionID

	resp := f.do(t, http.MethodPatch, path, "tok-1", UpdateQuestionRequest{
		QuestionText:  strPtr("Which city is the capital of France?"),
		CorrectAnswer: strPtr("B"),
		OptionC:       strPtr("Lyon"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body QuestionSuccessResponse
	decode(t, resp, &body)
	assert.Equal(t, "Which city is the capital of France?", body.Data.QuestionText)
	assert.Equal(t, "Lyon", body.Data.OptionC)
	assert.Equal(t, "London", body.Data.OptionA, "omitted fields are kept")

	stored, err := f.store.GetQuestion(context.Background(), q.QuestionID, creator)
	require.NoError(t, err)
	assert.Equal(t, "Lyon", stored.OptionC)
}

func TestUpdateQuestionRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	video := seedQuiz(t, f.store)
	q := seededQuestion(t, f.store, video)
	path := "/api/v1/questions/" + q.QuestionID

	cases := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"empty patch", path, map[string]string{}, http.StatusBadRequest},
		{"bad answer", path, UpdateQuestionRequest{CorrectAnswer: strPtr("E")}, http.StatusBadRequest},
		{"blank text", path, UpdateQuestionRequest{QuestionText: strPtr("  ")}, http.StatusBadRequest},
		{"bad id", "/api/v1/questions/nope", UpdateQuestionRequest{OptionA: strPtr("x")}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPatch, tc.path, "tok-1", tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}

	resp := f.do(t, http.MethodPatch, path, "tok-2", UpdateQuestionRequest{OptionA: strPtr("x")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	stored, err := f.store.GetQuestion(context.Background(), q.QuestionID, creator)
	require.NoError(t, err)
	assert.Equal(t, "London", stored.OptionA)
}

func TestCreateAndListResponses(t *testing.T) {
	f := newFixture(t, nil)
	video := seedQuiz(t, f.store)
	q := seededQuestion(t, f.store, video)
	path := "/api/v1/questions/" + q.QuestionID + "/responses"

	resp := f.do(t, http.MethodPost, path, "tok-1", CreateResponseRequest{UserID: "student-1", SelectedAnswer: "B"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created ResponseSuccessResponse
	decode(t, resp, &created)
	assert.True(t, created.Data.IsCorrect)
	assert.Equal(t, "student-1", created.Data.UserID)
	assert.Equal(t, creator, created.Data.CreatorID)

	resp = f.do(t, http.MethodPost, path, "tok-1", CreateResponseRequest{SelectedAnswer: "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var defaulted ResponseSuccessResponse
	decode(t, resp, &defaulted)
	assert.False(t, defaulted.Data.IsCorrect)
	assert.Equal(t, creator, defaulted.Data.UserID)

	resp = f.do(t, http.MethodPost, path, "tok-1", CreateResponseRequest{SelectedAnswer: "Z"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPost, path, "tok-2", CreateResponseRequest{SelectedAnswer: "B"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, path, "tok-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed ResponseListResponse
	decode(t, resp, &listed)
	require.Len(t, listed.Data, 2)
	assert.Equal(t, created.Data.ResponseID, listed.Data[0].ResponseID)

	resp = f.do(t, http.MethodGet, path, "tok-2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
