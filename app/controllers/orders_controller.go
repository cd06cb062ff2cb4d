package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/usercontext"
)

// HandleListOrders returns a page of the caller's staging orders.
func HandleListOrders(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	offset, limit := parsePagination(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := repository.GetGlobalFactory().GetOrderRepository().GetByUserID(ctx, userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load orders"})
	}

	return c.JSON(fiber.Map{"orders": orders, "offset": offset, "limit": limit})
}

// HandleGetOrder returns one order by UUID. Owners and admins only.
func HandleGetOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := repository.GetGlobalFactory().GetOrderRepository().GetByUUID(ctx, c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load order"})
	}

	if order.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Order belongs to a different account"})
	}

	return c.JSON(order)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateOrderStatus is the staging pipeline callback: it advances an
// order along pending -> processing -> completed|failed. The guarded update
// in the repository makes concurrent callbacks safe; an out-of-order
// transition is rejected.
func HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req orderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	switch req.Status {
	case models.OrderStatusProcessing, models.OrderStatusCompleted, models.OrderStatusFailed:
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "Unknown order status"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orderRepo := repository.GetGlobalFactory().GetOrderRepository()
	order, err := orderRepo.GetByUUID(ctx, c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load order"})
	}

	if err := orderRepo.UpdateStatus(ctx, order.UUID, order.Status, req.Status); err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidOrderTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "invalid_transition",
				"message": "Order cannot move from " + order.Status + " to " + req.Status,
			})
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Lost a race with another callback; report the conflict.
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Order state changed concurrently"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update order"})
		}
	}

	return c.JSON(fiber.Map{"uuid": order.UUID, "status": req.Status})
}
