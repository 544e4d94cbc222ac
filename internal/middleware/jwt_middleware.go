package middleware

import (
	"errors"
	"strings"

	"gatekeep/internal/metrics"
	"gatekeep/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Keys under which the verified identity is stored in fiber.Ctx locals.
const (
	LocalAccountID = "account_id"
	LocalUsername  = "username"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	VerifyToken(token string) (*services.Identity, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(verifier TokenVerifier, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			m.RecordTokenVerification(metrics.OutcomeMissing)
			return unauthorized(c, "Access token required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			m.RecordTokenVerification(metrics.OutcomeInvalid)
			return unauthorized(c, "Authorization header format must be 'Bearer <token>'")
		}

		identity, err := verifier.VerifyToken(parts[1])
		if err != nil {
			if errors.Is(err, services.ErrTokenExpired) {
				m.RecordTokenVerification(metrics.OutcomeExpired)
				return unauthorized(c, "Token expired")
			}
			m.RecordTokenVerification(metrics.OutcomeInvalid)
			return unauthorized(c, "Invalid token")
		}

		m.RecordTokenVerification(metrics.OutcomeSuccess)
		c.Locals(LocalAccountID, identity.AccountID)
		c.Locals(LocalUsername, identity.Username)

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": msg})
}
