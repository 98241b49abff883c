package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/bookstore/internal/utils"
)

const userContextKey = "currentUserID"

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// AuthMiddleware validates JWT tokens and loads the authenticated user ID into context.
func AuthMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := authenticate(verifier, c.Get(fiber.HeaderAuthorization))
		if err != nil {
			if errors.Is(err, utils.ErrMissingCredential) {
				return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
			}
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

func authenticate(verifier TokenVerifier, header string) (uuid.UUID, error) {
	if strings.TrimSpace(header) == "" {
		return uuid.Nil, utils.ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return uuid.Nil, utils.ErrInvalidToken
	}

	return verifier.Verify(strings.TrimSpace(parts[1]))
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}
