package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/ksandoe/quizmaker/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusBadRequest, StatusFor(apperr.New(apperr.InvalidInput, "bad")))
	assert.Equal(t, fiber.StatusNotFound, StatusFor(fmt.Errorf("wrap: %w", apperr.New(apperr.NotFound, "gone"))))
	assert.Equal(t, fiber.StatusConflict, StatusFor(apperr.New(apperr.Conflict, "busy")))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(apperr.New(apperr.Storage, "db")))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestFormatValidationErrors(t *testing.T) {
	type req struct {
		URL         string `validate:"required,url"`
		MaxSegments int    `validate:"gte=1"`
	}
	err := validator.New().Struct(req{MaxSegments: 0})
	msgs := FormatValidationErrors(err)
	assert.Equal(t, []string{
		"Field 'URL' failed on the 'required' tag",
		"Field 'MaxSegments' failed on the 'gte' tag (value: 1)",
	}, msgs)

	assert.Nil(t, FormatValidationErrors(nil))
	assert.Equal(t, []string{"other"}, FormatValidationErrors(errors.New("other")))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "https://youtu.be/x", SanitizeInput("  https://youtu.be/x \n"))
}
