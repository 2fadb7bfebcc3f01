package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authApp(token string) *fiber.App {
	app := fiber.New()
	app.Post("/run", InternalAuth(token), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestInternalAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"matching token passes", "secret", "secret", fiber.StatusOK},
		{"wrong token rejected", "secret", "wrong", fiber.StatusUnauthorized},
		{"missing token rejected", "secret", "", fiber.StatusUnauthorized},
		{"no token configured skips check", "", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/run", nil)
			if tt.header != "" {
				req.Header.Set("X-Internal-Token", tt.header)
			}

			resp, err := authApp(tt.token).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
