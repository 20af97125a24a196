package handlers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/quizexport"
)

// XLSXContentType is the media type of exported workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// QuizSegment is a segment with its generated question, if any.
type QuizSegment struct {
	models.Segment
	Question *models.Question `json:"question"`
}

// Quiz is a video with its ordered segments.
type Quiz struct {
	Video    models.Video  `json:"video"`
	Segments []QuizSegment `json:"segments"`
}

// QuizResponse wraps a Quiz.
type QuizResponse struct {
	Status string `json:"status"`
	Data   Quiz   `json:"data"`
}

// GetQuiz godoc
// @Summary Read back a generated quiz
// @Description Returns the video and its segments in transcript order. Segments whose question failed carry status "error" and no question.
// @Tags quiz
// @Produce  json
// @Security BearerAuth
// @Param   videoId path string true "Video ID"
// @Success 200 {object} QuizResponse
// @Failure 400 {object} ErrorResponse "Malformed video id"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /api/v1/videos/{videoId}/quiz [get]
func (h *ApplicationHandler) GetQuiz(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if err != nil {
		return h.respondErr(c, err)
	}
	segments, err := h.loadQuiz(c.UserContext(), video)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(QuizResponse{
		Status: "success",
		Data:   Quiz{Video: video, Segments: segments},
	})
}

// ExportQuiz godoc
// @Summary Download a quiz as a spreadsheet
// @Tags quiz
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param   videoId path string true "Video ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse "Malformed video id"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /api/v1/videos/{videoId}/quiz/export [get]
func (h *ApplicationHandler) ExportQuiz(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if err != nil {
		return h.respondErr(c, err)
	}
	segments, err := h.loadQuiz(c.UserContext(), video)
	if err != nil {
		return h.respondErr(c, err)
	}

	items := make([]quizexport.Item, len(segments))
	for i, s := range segments {
		items[i] = quizexport.Item{Segment: s.Segment, Question: s.Question}
	}
	var buf bytes.Buffer
	if err := quizexport.Write(&buf, video, items); err != nil {
		return h.respondErr(c, fmt.Errorf("render workbook: %w", err))
	}

	c.Set(fiber.HeaderContentType, XLSXContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="quiz-%s.xlsx"`, video.VideoID))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

func (h *ApplicationHandler) loadQuiz(ctx context.Context, video models.Video) ([]QuizSegment, error) {
	segments, err := h.Store.ListSegments(ctx, video.VideoID, video.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	out := make([]QuizSegment, len(segments))
	if len(segments) == 0 {
		return out, nil
	}

	ids := make([]string, len(segments))
	for i, s := range segments {
		ids[i] = s.SegmentID
	}
	questions, err := h.Store.ListQuestions(ctx, ids, video.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	bySegment := make(map[string]*models.Question, len(questions))
	for i := range questions {
		bySegment[questions[i].SegmentID] = &questions[i]
	}
	for i, s := range segments {
		out[i] = QuizSegment{Segment: s, Question: bySegment[s.SegmentID]}
	}
	return out, nil
}
