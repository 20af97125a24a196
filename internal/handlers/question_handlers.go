package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/middleware"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/utils"
)

// UpdateQuestionRequest edits a generated question. Omitted fields are kept.
type UpdateQuestionRequest struct {
	QuestionText  *string `json:"question_text,omitempty" validate:"omitempty,min=1"`
	OptionA       *string `json:"option_a,omitempty" validate:"omitempty,min=1"`
	OptionB       *string `json:"option_b,omitempty" validate:"omitempty,min=1"`
	OptionC       *string `json:"option_c,omitempty" validate:"omitempty,min=1"`
	OptionD       *string `json:"option_d,omitempty" validate:"omitempty,min=1"`
	CorrectAnswer *string `json:"correct_answer,omitempty" validate:"omitempty,oneof=A B C D"`
	Status        *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

func (r UpdateQuestionRequest) patch() models.QuestionPatch {
	p := models.QuestionPatch{
		QuestionText: r.QuestionText,
		OptionA:      r.OptionA,
		OptionB:      r.OptionB,
		OptionC:      r.OptionC,
		OptionD:      r.OptionD,
		Status:       r.Status,
	}
	if r.CorrectAnswer != nil {
		a := models.Answer(*r.CorrectAnswer)
		p.CorrectAnswer = &a
	}
	return p
}

// QuestionSuccessResponse wraps a single question.
type QuestionSuccessResponse struct {
	Status string          `json:"status"`
	Data   models.Question `json:"data"`
}

// CreateResponseRequest records one answer. UserID defaults to the caller.
type CreateResponseRequest struct {
	UserID         string `json:"user_id,omitempty" validate:"omitempty,max=255"`
	SelectedAnswer string `json:"selected_answer" validate:"required,oneof=A B C D"`
}

// ResponseSuccessResponse wraps a single recorded answer.
type ResponseSuccessResponse struct {
	Status string          `json:"status"`
	Data   models.Response `json:"data"`
}

// ResponseListResponse wraps the answers recorded for a question.
type ResponseListResponse struct {
	Status string            `json:"status"`
	Data   []models.Response `json:"data"`
}

// UpdateQuestion godoc
// @Summary Edit a generated question
// @Tags questions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "Question ID"
// @Param   question body UpdateQuestionRequest true "Fields to change"
// @Success 200 {object} QuestionSuccessResponse
// @Failure 400 {object} ErrorResponse "Malformed id or invalid fields"
// @Failure 404 {object} ErrorResponse "Question not found"
// @Router /api/v1/questions/{questionId} [patch]
func (h *ApplicationHandler) UpdateQuestion(c *fiber.Ctx) error {
	questionID, err := questionParam(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	req := new(UpdateQuestionRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse request JSON: %v", err))
	}
	if req.QuestionText != nil {
		text := utils.SanitizeInput(*req.QuestionText)
		req.QuestionText = &text
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid request",
			"errors":  utils.FormatValidationErrors(err),
		})
	}
	patch := req.patch()
	if patch.Empty() {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "No fields to update")
	}

	q, err := h.Store.UpdateQuestion(c.UserContext(), questionID, middleware.CreatorID(c), patch)
	if err != nil {
		return h.respondErr(c, err)
	}
	h.Logger.WithField("question_id", questionID).Info("Question updated")
	return c.Status(fiber.StatusOK).JSON(QuestionSuccessResponse{Status: "success", Data: q})
}

// CreateResponse godoc
// @Summary Record an answer to a question
// @Description Grades the selected option against the question's correct answer and stores the result.
// @Tags questions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "Question ID"
// @Param   response body CreateResponseRequest true "Selected option"
// @Success 201 {object} ResponseSuccessResponse
// @Failure 400 {object} ErrorResponse "Malformed id or invalid answer"
// @Failure 404 {object} ErrorResponse "Question not found"
// @Router /api/v1/questions/{questionId}/responses [post]
func (h *ApplicationHandler) CreateResponse(c *fiber.Ctx) error {
	questionID, err := questionParam(c)
	if err != nil {
		return h.respondErr(c, err)
	}
	creatorID := middleware.CreatorID(c)

	req := new(CreateResponseRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse request JSON: %v", err))
	}
	req.UserID = utils.SanitizeInput(req.UserID)
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid request",
			"errors":  utils.FormatValidationErrors(err),
		})
	}
	if req.UserID == "" {
		req.UserID = creatorID
	}

	q, err := h.Store.GetQuestion(c.UserContext(), questionID, creatorID)
	if err != nil {
		return h.respondErr(c, err)
	}
	r, err := h.Store.CreateResponse(c.UserContext(), models.Grade(q, req.UserID, models.Answer(req.SelectedAnswer)))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ResponseSuccessResponse{Status: "success", Data: r})
}

// ListResponses godoc
// @Summary List the answers recorded for a question
// @Tags questions
// @Produce  json
// @Security BearerAuth
// @Param   questionId path string true "Question ID"
// @Success 200 {object} ResponseListResponse
// @Failure 400 {object} ErrorResponse "Malformed question id"
// @Failure 404 {object} ErrorResponse "Question not found"
// @Router /api/v1/questions/{questionId}/responses [get]
func (h *ApplicationHandler) ListResponses(c *fiber.Ctx) error {
	questionID, err := questionParam(c)
	if err != nil {
		return h.respondErr(c, err)
	}
	creatorID := middleware.CreatorID(c)
	if _, err := h.Store.GetQuestion(c.UserContext(), questionID, creatorID); err != nil {
		return h.respondErr(c, err)
	}
	rs, err := h.Store.ListResponses(c.UserContext(), questionID, creatorID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseListResponse{Status: "success", Data: rs})
}

func questionParam(c *fiber.Ctx) (string, error) {
	id := c.Params("questionId")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.New(apperr.InvalidInput, "Invalid question id")
	}
	return id, nil
}
