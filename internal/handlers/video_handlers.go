package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/middleware"
	"github.com/ksandoe/quizmaker/internal/models"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/utils"
	"github.com/ksandoe/quizmaker/internal/ytdlp"
)

// EnqueueErrorPrefix starts the error_message of videos that never reached
// the queue.
const EnqueueErrorPrefix = pipeline.PrefixEnqueue

// CreateVideoRequest defines the expected request body for submitting a video.
type CreateVideoRequest struct {
	URL         string `json:"url" validate:"required"`
	MaxSegments *int   `json:"max_segments,omitempty" validate:"omitempty,gte=1,lte=100"`
}

// VideoSuccessResponse wraps a single video.
type VideoSuccessResponse struct {
	Status string       `json:"status"`
	Data   models.Video `json:"data"`
}

// VideoStatus is the polling view of a video.
type VideoStatus struct {
	VideoID      string             `json:"video_id"`
	Status       models.VideoStatus `json:"status"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	Title        string             `json:"title"`
	WordCount    *int               `json:"word_count,omitempty"`
	MaxSegments  *int               `json:"max_segments,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// VideoStatusResponse wraps a VideoStatus.
type VideoStatusResponse struct {
	Status string      `json:"status"`
	Data   VideoStatus `json:"data"`
}

// VideoListResponse wraps the creator's videos.
type VideoListResponse struct {
	Status string         `json:"status"`
	Data   []models.Video `json:"data"`
}

// ErrorResponse defines a common structure for error responses.
type ErrorResponse = utils.ErrorBody

// CreateVideo godoc
// @Summary Submit a YouTube video for quiz generation
// @Description Creates a pending video and queues it for download, transcription, segmentation and question generation. Returns before processing starts.
// @Tags videos
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   video body CreateVideoRequest true "Video to process"
// @Success 202 {object} VideoSuccessResponse "Video accepted for processing"
// @Failure 400 {object} ErrorResponse "Invalid or unsupported URL"
// @Failure 401 {object} ErrorResponse "Missing or invalid token"
// @Failure 500 {object} ErrorResponse "Video could not be stored or queued"
// @Router /api/v1/videos [post]
func (h *ApplicationHandler) CreateVideo(c *fiber.Ctx) error {
	creatorID := middleware.CreatorID(c)
	log := h.Logger.WithField("creator_id", creatorID)

	req := new(CreateVideoRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Cannot parse request JSON: %v", err))
	}
	req.URL = utils.SanitizeInput(req.URL)
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid request",
			"errors":  utils.FormatValidationErrors(err),
		})
	}
	if err := ytdlp.ValidateURL(req.URL); err != nil {
		return utils.RespondWithError(c, utils.StatusFor(err), err.Error())
	}

	maxSegments := req.MaxSegments
	if maxSegments == nil {
		maxSegments = h.DefaultMaxSegments
	}

	video, err := h.Store.CreateVideo(c.UserContext(), models.NewVideo{
		URL:         req.URL,
		Title:       req.URL,
		CreatorID:   creatorID,
		Status:      models.VideoStatusPending,
		MaxSegments: maxSegments,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create video record")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Failed to create video record")
	}
	log = log.WithField("video_id", video.VideoID)

	err = h.Queue.Publish(c.UserContext(), pipeline.Request{
		VideoID:   video.VideoID,
		URL:       video.URL,
		CreatorID: creatorID,
	})
	if err != nil {
		msg := EnqueueErrorPrefix + err.Error()
		log.WithError(err).Error("Failed to enqueue video")
		if uerr := h.Store.UpdateVideo(context.WithoutCancel(c.UserContext()), video.VideoID, creatorID, models.ErrorPatch(msg)); uerr != nil {
			log.WithError(uerr).Error("Failed to record enqueue error")
		}
		return utils.RespondWithError(c, fiber.StatusInternalServerError, msg)
	}

	log.Info("Video queued for processing")
	return c.Status(fiber.StatusAccepted).JSON(VideoSuccessResponse{Status: "success", Data: video})
}

// GetVideoStatus godoc
// @Summary Poll processing status
// @Tags videos
// @Produce  json
// @Security BearerAuth
// @Param   videoId path string true "Video ID"
// @Success 200 {object} VideoStatusResponse
// @Failure 400 {object} ErrorResponse "Malformed video id"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /api/v1/videos/{videoId}/status [get]
func (h *ApplicationHandler) GetVideoStatus(c *fiber.Ctx) error {
	video, err := h.loadVideo(c)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(VideoStatusResponse{
		Status: "success",
		Data: VideoStatus{
			VideoID:      video.VideoID,
			Status:       video.Status,
			ErrorMessage: video.ErrorMessage,
			Title:        video.Title,
			WordCount:    video.WordCount,
			MaxSegments:  video.MaxSegments,
			UpdatedAt:    video.UpdatedAt,
		},
	})
}

// ListVideos godoc
// @Summary List submitted videos
// @Description Returns the caller's videos, newest first.
// @Tags videos
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} VideoListResponse
// @Failure 401 {object} ErrorResponse "Missing or invalid token"
// @Router /api/v1/videos [get]
func (h *ApplicationHandler) ListVideos(c *fiber.Ctx) error {
	videos, err := h.Store.ListVideos(c.UserContext(), middleware.CreatorID(c))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(VideoListResponse{Status: "success", Data: videos})
}

// DeleteVideo godoc
// @Summary Delete a video and its quiz
// @Description Removes the video with its segments, questions and recorded responses.
// @Tags videos
// @Security BearerAuth
// @Param   videoId path string true "Video ID"
// @Success 204
// @Failure 400 {object} ErrorResponse "Malformed video id"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /api/v1/videos/{videoId} [delete]
func (h *ApplicationHandler) DeleteVideo(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if _, err := uuid.Parse(videoID); err != nil {
		return h.respondErr(c, apperr.New(apperr.InvalidInput, "Invalid video id"))
	}
	creatorID := middleware.CreatorID(c)
	if err := h.Store.DeleteVideo(c.UserContext(), videoID, creatorID); err != nil {
		return h.respondErr(c, err)
	}
	h.Logger.WithFields(logrus.Fields{"video_id": videoID, "creator_id": creatorID}).Info("Video deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ApplicationHandler) loadVideo(c *fiber.Ctx) (models.Video, error) {
	videoID := c.Params("videoId")
	if _, err := uuid.Parse(videoID); err != nil {
		return models.Video{}, apperr.New(apperr.InvalidInput, "Invalid video id")
	}
	return h.Store.GetVideo(c.UserContext(), videoID, middleware.CreatorID(c))
}

func (h *ApplicationHandler) respondErr(c *fiber.Ctx, err error) error {
	status := utils.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.Logger.WithError(err).WithField(middleware.LocalRequestID, c.Locals(middleware.LocalRequestID)).Error("Request failed")
		return utils.RespondWithError(c, status, "Internal server error")
	}
	return utils.RespondWithError(c, status, err.Error())
}
