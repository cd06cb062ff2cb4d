package controllers

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	metrics "github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/metrics/counter"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/env"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/payments"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/usercontext"
)

var (
	paymentsEngine   *payments.Engine
	paymentsProvider payments.ProviderClient
)

// InitPaymentsController wires the reconciliation engine and provider client
// into the payment handlers. Called once from router setup.
func InitPaymentsController(engine *payments.Engine, provider payments.ProviderClient) {
	paymentsEngine = engine
	paymentsProvider = provider
}

// webhookPayload is the JSON body the payment provider posts on checkout
// completion. EventID doubles as the idempotency key.
type webhookPayload struct {
	Provider   string `json:"provider"`
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	Email      string `json:"email"`
	Credits    int64  `json:"credits"`
	PhotoCount int    `json:"photo_count"`
}

// HandlePaymentWebhook ingests provider payment notifications. Only a bad
// signature is answered with an error the provider should not retry through;
// schema problems are acked with a rejected status so redeliveries stop, and
// transient failures return 5xx so the provider retries.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	if !payments.VerifySignature(rawBody, signature, secret, payments.DefaultSignatureTolerance, time.Now()) {
		if err := metrics.AddOutcome("unknown", "invalid_signature"); err != nil {
			log.Debugf("outcome counter update failed: %v", err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return c.Status(fiber.StatusOK).JSON(&payments.Result{
			Status:  payments.StatusRejected,
			State:   payments.StateRejected,
			Message: "malformed payload",
		})
	}
	if payload.Provider == "" {
		payload.Provider = "stripe"
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := paymentsEngine.Reconcile(ctx, &payments.Notification{
		Provider:          payload.Provider,
		ExternalKey:       payload.EventID,
		EventType:         payload.EventType,
		Email:             payload.Email,
		Credits:           payload.Credits,
		PhotoCount:        payload.PhotoCount,
		RawPayload:        rawBody,
		SignatureVerified: true,
	})
	if err != nil {
		log.Errorf("webhook reconciliation for %s/%s failed: %v", payload.Provider, payload.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_failed"})
	}

	if cerr := metrics.AddOutcome(payload.Provider, result.Status); cerr != nil {
		log.Debugf("outcome counter update failed: %v", cerr)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

type verifyRequest struct {
	SessionID     string `json:"session_id"`
	CheckoutToken string `json:"checkout_token"`
}

// HandlePaymentVerify is the client-initiated path: the authenticated user
// asks whether their checkout session completed. The session identity must
// match the caller. On success the checkout lock and cart are cleaned up.
func HandlePaymentVerify(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	var req verifyRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "session_id is required"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := paymentsEngine.VerifySession(ctx, user, paymentsProvider, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnauthorized):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Payment session belongs to a different account"})
		case errors.Is(err, payments.ErrSessionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payment session not found"})
		default:
			log.Errorf("payment verification for session %s failed: %v", req.SessionID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "verification_failed", "message": "Could not verify payment, please try again"})
		}
	}

	if cerr := metrics.AddOutcome("verify", result.Status); cerr != nil {
		log.Debugf("outcome counter update failed: %v", cerr)
	}

	if result.Status == payments.StatusApplied || result.Status == payments.StatusDuplicate {
		releaseCheckoutArtifacts(ctx, user.Email, req.CheckoutToken)
	}

	return c.JSON(result)
}
