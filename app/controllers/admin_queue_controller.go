package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/jobqueue"
)

// HandleAdminQueueStats reports job queue health: per-status totals plus the
// live pending and processing list sizes.
func HandleAdminQueueStats(c *fiber.Ctx) error {
	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load queue stats"})
	}
	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load queue size"})
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load processing size"})
	}

	return c.JSON(fiber.Map{
		"running":    manager.IsRunning(),
		"stats":      stats,
		"pending":    pending,
		"processing": processing,
	})
}
