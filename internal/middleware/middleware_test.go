package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func signed(t *testing.T, claims jwt.Claims, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(secret)

	good := signed(t, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, secret)
	sub, err := v.Verify(good)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)

	expired := signed(t, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}, secret)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	wrongKey := signed(t, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, "another-secret-another-secret-another")
	_, err = v.Verify(wrongKey)
	assert.Error(t, err)

	noExpiry := signed(t, jwt.RegisteredClaims{Subject: "user-123"}, secret)
	_, err = v.Verify(noExpiry)
	assert.Error(t, err)

	noSubject := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}, secret)
	_, err = v.Verify(noSubject)
	assert.Error(t, err)
}

type staticVerifier map[string]string

func (s staticVerifier) Verify(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

func newAuthApp() *fiber.App {
	logger, _ := logtest.NewNullLogger()
	app := fiber.New()
	app.Use(Auth(staticVerifier{"good": "user-1"}, logger.WithField("test", true)))
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendString(CreatorID(c)) })
	return app
}

func TestAuthMiddleware(t *testing.T) {
	app := newAuthApp()

	cases := []struct {
		header string
		status int
		body   string
	}{
		{"", fiber.StatusUnauthorized, "No token provided"},
		{"Basic abc", fiber.StatusUnauthorized, "No token provided"},
		{"Bearer ", fiber.StatusUnauthorized, "No token provided"},
		{"Bearer bad", fiber.StatusUnauthorized, "Invalid token"},
		{"Bearer good", fiber.StatusOK, "user-1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, tc.status, resp.StatusCode, tc.header)
		assert.Contains(t, string(body), tc.body, tc.header)
	}
}

func TestRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	app := fiber.New()
	app.Use(RequestLogger(logger.WithField("test", true)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, 200, entry.Data["status_code"])
	assert.Equal(t, resp.Header.Get("X-Request-ID"), entry.Data["request_id"])

	_, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
