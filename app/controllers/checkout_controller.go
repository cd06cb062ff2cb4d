package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/checkout"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/usercontext"
)

var (
	checkoutLocks *checkout.LockManager
	checkoutCarts *checkout.Sessions
)

// InitCheckoutController wires the Redis-backed lock manager and cart store.
// Called once from router setup.
func InitCheckoutController(locks *checkout.LockManager, carts *checkout.Sessions) {
	checkoutLocks = locks
	checkoutCarts = carts
}

type checkoutStartRequest struct {
	PhotoCount int   `json:"photo_count"`
	Credits    int64 `json:"credits"`
}

// HandleCheckoutStart opens a new checkout attempt for the session user. The
// per-identity lock serializes attempts: a second tab gets 409 until the
// first attempt finishes or the lock TTL expires.
func HandleCheckoutStart(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	var req checkoutStartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.Credits <= 0 || req.PhotoCount < 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": "credits must be positive"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lockToken, err := checkoutLocks.Acquire(ctx, user.Email)
	if err != nil {
		if errors.Is(err, checkout.ErrCheckoutInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "checkout_in_progress",
				"message": "Another checkout is already running, please try again shortly",
			})
		}
		log.Errorf("checkout lock acquire for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout unavailable"})
	}

	token, err := checkoutCarts.Create(ctx, checkout.Cart{
		UserID:     userCtx.UserID,
		Email:      user.Email,
		PhotoCount: req.PhotoCount,
		Credits:    req.Credits,
		LockToken:  lockToken,
	})
	if err != nil {
		// Do not strand the identity behind a cartless lock.
		if rerr := checkoutLocks.Release(ctx, user.Email, lockToken); rerr != nil {
			log.Errorf("checkout lock rollback for user %d failed: %v", userCtx.UserID, rerr)
		}
		log.Errorf("checkout cart create for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout unavailable"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"checkout_token": token,
		"photo_count":    req.PhotoCount,
		"credits":        req.Credits,
		"lock_ttl_secs":  int(checkout.DefaultLockTTL.Seconds()),
	})
}

// HandleCheckoutCancel abandons a checkout attempt: cart removed, lock freed.
func HandleCheckoutCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing checkout token"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	cart, err := checkoutCarts.Get(ctx, token)
	if err != nil {
		if errors.Is(err, checkout.ErrCartNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Checkout not found or expired"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load checkout"})
	}
	if cart.UserID != userCtx.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Checkout belongs to a different account"})
	}

	releaseCheckoutArtifacts(ctx, cart.Email, token)

	return c.JSON(fiber.Map{"status": "cancelled"})
}

// releaseCheckoutArtifacts frees the identity lock and drops the cart. Both
// are best effort: the lock TTL and cart TTL clean up anything missed here.
func releaseCheckoutArtifacts(ctx context.Context, email, token string) {
	if checkoutCarts == nil || checkoutLocks == nil || token == "" {
		return
	}
	cart, err := checkoutCarts.Get(ctx, token)
	if err != nil {
		return
	}
	if cart.LockToken != "" {
		if err := checkoutLocks.Release(ctx, email, cart.LockToken); err != nil {
			log.Errorf("checkout lock release for %s failed: %v", email, err)
		}
	}
	if err := checkoutCarts.Delete(ctx, token); err != nil {
		log.Errorf("checkout cart delete for token %s failed: %v", token, err)
	}
}
