package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultRequestTimeout = 15 * time.Second

// requestContext derives a bounded context from the request for database and
// Redis calls.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), defaultRequestTimeout)
}

// parsePagination reads offset/limit query params with sane bounds.
func parsePagination(c *fiber.Ctx) (int, int) {
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(c.Query("limit", "25"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 25
	}
	return offset, limit
}
