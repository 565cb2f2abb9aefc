package middleware

import (
	"strings"

	"katalog/internal/authz"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const callerKey = "caller"

// TokenAuthenticator resolves a bearer token to a caller.
type TokenAuthenticator interface {
	Authenticate(token string) (authz.Caller, error)
}

// Authenticate identifies the caller when an Authorization header is sent.
// Requests without one continue as anonymous; a malformed or invalid token
// is refused with 401.
func Authenticate(auth TokenAuthenticator, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			c.Locals(callerKey, authz.Caller{})
			return c.Next()
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		caller, err := auth.Authenticate(parts[1])
		if err != nil {
			logger.Debug("jwt validation failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// AuthRequired refuses anonymous callers. It runs after Authenticate.
func AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !CallerFrom(c).Authenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}
		return c.Next()
	}
}

// CallerFrom returns the caller stored by Authenticate, or an anonymous one.
func CallerFrom(c *fiber.Ctx) authz.Caller {
	if caller, ok := c.Locals(callerKey).(authz.Caller); ok {
		return caller
	}
	return authz.Caller{}
}
