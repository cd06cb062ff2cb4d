package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/credits"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/jobqueue"
	metrics "github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/metrics/counter"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/usercontext"
)

type adminAdjustRequest struct {
	UserID uint   `json:"user_id"`
	Delta  int64  `json:"delta"`
	Note   string `json:"note"`
}

// HandleAdminAdjustCredits applies a manual credit correction through the
// same ledger path as every other balance change. The acting admin and note
// end up in the entry's order ref for the audit trail.
func HandleAdminAdjustCredits(c *fiber.Ctx) error {
	var req adminAdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.UserID == 0 || req.Delta == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "user_id and a non-zero delta are required"})
	}

	reason := models.LedgerReasonAdminAdd
	if req.Delta < 0 {
		reason = models.LedgerReasonAdminSubtract
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	adminCtx := usercontext.GetUserContext(c)
	auditRef := "admin:" + adminCtx.Username
	if req.Note != "" {
		auditRef += ":" + req.Note
	}

	entry, err := creditsService.ApplyDelta(ctx, req.UserID, req.Delta, reason, "", auditRef)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient_credits", "message": "Adjustment would push the balance below zero"})
		}
		log.Errorf("admin adjustment for user %d failed: %v", req.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Adjustment failed"})
	}

	return c.JSON(fiber.Map{
		"entry":   entry,
		"balance": entry.BalanceAfter,
	})
}

// HandleAdminListPaymentEvents pages through the idempotency registry.
func HandleAdminListPaymentEvents(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	events, total, err := repository.GetGlobalFactory().GetPaymentEventRepository().List(ctx, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment events"})
	}

	return c.JSON(fiber.Map{
		"events": events,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// HandleAdminLedgerAudit replays a user's ledger and compares the sum of
// deltas with the stored balance.
func HandleAdminLedgerAudit(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("user_id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid user id"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	replayed, err := creditsService.ReplayBalance(ctx, uint(userID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User has no ledger"})
		}
		// Drift is reported as a failed audit, not an internal error.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "ledger_drift",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"user_id": userID, "balance": replayed, "consistent": true})
}

// HandleAdminOutcomeCounters returns the reconciliation outcome counters.
// Pass ?day=2006-01-02 for a single UTC day instead of the all-time totals.
func HandleAdminOutcomeCounters(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var (
		counters map[string]string
		err      error
	)
	if day := c.Query("day"); day != "" {
		counters, err = metrics.SnapshotDay(ctx, day)
	} else {
		counters, err = metrics.Snapshot(ctx)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load counters"})
	}

	return c.JSON(fiber.Map{"counters": counters})
}

// HandleAdminRunStaleClaimSweep triggers one stale claim sweep outside the
// regular schedule.
func HandleAdminRunStaleClaimSweep(c *fiber.Ctx) error {
	if err := jobqueue.GetManager().RunStaleClaimSweepOnce(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Sweep failed"})
	}
	return c.JSON(fiber.Map{"status": "sweep_completed"})
}
