package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/queue"
	"github.com/ksandoe/quizmaker/internal/store"
)

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Store  store.Store
	Queue  queue.Publisher
	Logger *logrus.Entry
	// DefaultMaxSegments is stored on videos created without an explicit
	// segment count. Nil means derive it from the transcript length.
	DefaultMaxSegments *int

	validate *validator.Validate
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(st store.Store, pub queue.Publisher, logger *logrus.Entry, defaultMaxSegments *int) *ApplicationHandler {
	return &ApplicationHandler{
		Store:              st,
		Queue:              pub,
		Logger:             logger,
		DefaultMaxSegments: defaultMaxSegments,
		validate:           validator.New(),
	}
}

// Register mounts the API routes. auth guards everything under /api/v1.
func (h *ApplicationHandler) Register(app *fiber.App, auth fiber.Handler) {
	app.Get("/api/health", h.Health)

	apiV1 := app.Group("/api/v1", auth)
	apiV1.Post("/videos", h.CreateVideo)
	apiV1.Get("/videos", h.ListVideos)
	apiV1.Delete("/videos/:videoId", h.DeleteVideo)
	apiV1.Get("/videos/:videoId/status", h.GetVideoStatus)
	apiV1.Get("/videos/:videoId/quiz", h.GetQuiz)
	apiV1.Get("/videos/:videoId/quiz/export", h.ExportQuiz)

	apiV1.Patch("/questions/:questionId", h.UpdateQuestion)
	apiV1.Post("/questions/:questionId/responses", h.CreateResponse)
	apiV1.Get("/questions/:questionId/responses", h.ListResponses)
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /api/health [get]
func (h *ApplicationHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(HealthResponse{Status: "ok", Message: "API is healthy"})
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
