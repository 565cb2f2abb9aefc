package middleware_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"katalog/internal/authz"
	"katalog/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator map[string]authz.Caller

func (s stubAuthenticator) Authenticate(token string) (authz.Caller, error) {
	caller, ok := s[token]
	if !ok {
		return authz.Caller{}, errors.New("invalid token")
	}
	return caller, nil
}

func newTestApp() *fiber.App {
	auth := stubAuthenticator{"good": {UserID: "u1", Username: "alice"}}
	app := fiber.New()
	app.Use(middleware.Authenticate(auth, nil))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CallerFrom(c).Username)
	})
	app.Get("/private", middleware.AuthRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthenticate(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"anonymous public", "/whoami", "", fiber.StatusOK},
		{"anonymous private", "/private", "", fiber.StatusUnauthorized},
		{"valid token", "/private", "Bearer good", fiber.StatusNoContent},
		{"invalid token", "/whoami", "Bearer bad", fiber.StatusUnauthorized},
		{"wrong scheme", "/whoami", "Token good", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
