package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/credits"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/database"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/payments"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/usercontext"
)

var (
	creditsService  *credits.Service
	creditsNotifier payments.Notifier
)

// InitCreditsController wires the credits service and notifier. Called once
// from router setup.
func InitCreditsController(svc *credits.Service, notifier payments.Notifier) {
	creditsService = svc
	creditsNotifier = notifier
}

// HandleGetBalance returns the caller's current credit balance.
func HandleGetBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	balance, err := creditsService.Balance(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}

	return c.JSON(fiber.Map{"user_id": userCtx.UserID, "balance": balance})
}

// HandleGetLedger returns a page of the caller's ledger history, newest first.
func HandleGetLedger(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	offset, limit := parsePagination(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, total, err := creditsService.History(ctx, userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load ledger"})
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

type consumeRequest struct {
	Credits   int64  `json:"credits"`
	SourceRef string `json:"source_ref"`
}

// HandleConsumeCredits spends credits on a new staging order. The ledger
// write and the order row happen in that sequence: if the deduction fails
// nothing is created, and an order create failure refunds the deduction.
func HandleConsumeCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	var req consumeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.Credits <= 0 {
		req.Credits = 1
	}
	if req.SourceRef == "" {
		req.SourceRef = "manual"
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orderUUID := uuid.New().String()
	entry, err := creditsService.ApplyDelta(ctx, userCtx.UserID, -req.Credits, models.LedgerReasonUsage, "", orderUUID)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "insufficient_credits",
				"message": "Not enough credits for this staging order",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to deduct credits"})
	}

	order := &models.StagingOrder{
		UUID:        orderUUID,
		UserID:      userCtx.UserID,
		CreditsUsed: req.Credits,
		Status:      models.OrderStatusPending,
		SourceRef:   req.SourceRef,
	}
	if err := repository.GetGlobalFactory().GetOrderRepository().Create(ctx, order); err != nil {
		log.Errorf("staging order create for user %d failed, refunding %d credits: %v", userCtx.UserID, req.Credits, err)
		if _, rerr := creditsService.ApplyDelta(ctx, userCtx.UserID, req.Credits, models.LedgerReasonRefund, "", orderUUID); rerr != nil {
			log.Errorf("refund after failed order create for user %d failed: %v", userCtx.UserID, rerr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create staging order"})
	}

	if creditsNotifier != nil {
		creditsNotifier.Notify(models.NotificationTypeOrderCreated, userCtx.UserID, map[string]interface{}{
			"order_uuid": order.UUID,
			"credits":    req.Credits,
			"balance":    entry.BalanceAfter,
		})
		maybeWarnLowCredits(userCtx.UserID, entry.BalanceAfter)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":   order,
		"balance": entry.BalanceAfter,
	})
}

// maybeWarnLowCredits dispatches a low-credit warning when the balance drops
// to or below the user's configured threshold.
func maybeWarnLowCredits(userID uint, balance int64) {
	db := database.GetDB()
	if db == nil {
		return
	}
	settings, err := models.GetOrCreateUserSettings(db, userID)
	if err != nil {
		log.Debugf("low-credit check for user %d skipped: %v", userID, err)
		return
	}
	if settings.LowCreditWarnAt <= 0 || balance > settings.LowCreditWarnAt {
		return
	}
	creditsNotifier.Notify(models.NotificationTypeLowCredits, userID, map[string]interface{}{
		"balance":   balance,
		"threshold": settings.LowCreditWarnAt,
	})
}
