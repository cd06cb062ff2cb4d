package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipelineTestApp() *fiber.App {
	app := fiber.New()
	app.Patch("/orders/:uuid/status", RequirePipelineKey(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"uuid": c.Params("uuid")})
	})
	return app
}

func TestRequirePipelineKey(t *testing.T) {
	t.Setenv("PIPELINE_API_KEY", "svc_pipeline_secret")
	app := newPipelineTestApp()

	tests := []struct {
		name     string
		header   string
		value    string
		expected int
	}{
		{"Valid service key", "X-Pipeline-Key", "svc_pipeline_secret", fiber.StatusOK},
		{"Missing key", "", "", fiber.StatusUnauthorized},
		{"Wrong key", "X-Pipeline-Key", "guessed", fiber.StatusUnauthorized},
		{"Personal API key header does not count", "X-API-Key", "svc_pipeline_secret", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPatch, "/orders/abc/status", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestRequirePipelineKeyRejectsAllWhenUnconfigured(t *testing.T) {
	t.Setenv("PIPELINE_API_KEY", "")
	app := newPipelineTestApp()

	req := httptest.NewRequest(fiber.MethodPatch, "/orders/abc/status", nil)
	req.Header.Set("X-Pipeline-Key", "")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
