package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/env"
)

// RequirePipelineKey authenticates staging pipeline callbacks with the shared
// service key from PIPELINE_API_KEY. Personal API keys and user sessions do
// not pass here: order status transitions belong to the pipeline, not to the
// customer who owns the order. An unset key disables the callback surface
// entirely.
func RequirePipelineKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		configured := env.GetEnv("PIPELINE_API_KEY", "")
		presented := strings.TrimSpace(c.Get("X-Pipeline-Key"))
		if configured == "" || presented == "" ||
			subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Valid pipeline service key required",
			})
		}
		return c.Next()
	}
}
