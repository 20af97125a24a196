package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	supa "github.com/supabase-community/supabase-go"

	"github.com/ksandoe/quizmaker/internal/utils"
)

// LocalCreatorID is the fiber.Ctx locals key holding the authenticated user id.
const LocalCreatorID = "creator_id"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier checks Supabase access tokens locally with the project's JWT
// secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// SupabaseVerifier asks the Supabase auth API who owns the token.
type SupabaseVerifier struct {
	client *supa.Client
}

// NewSupabaseVerifier creates a SupabaseVerifier.
func NewSupabaseVerifier(client *supa.Client) *SupabaseVerifier {
	return &SupabaseVerifier{client: client}
}

func (v *SupabaseVerifier) Verify(token string) (string, error) {
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", errors.New("no user for token")
	}
	return user.ID.String(), nil
}

// Auth requires a bearer token and stores the verified user id under
// LocalCreatorID.
func Auth(verifier TokenVerifier, log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "No token provided")
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			log.WithError(err).WithField(LocalRequestID, c.Locals(LocalRequestID)).Warn("Rejected bearer token")
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid token")
		}

		c.Locals(LocalCreatorID, userID)
		return c.Next()
	}
}

// CreatorID returns the user id stored by Auth.
func CreatorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalCreatorID).(string)
	return id
}
