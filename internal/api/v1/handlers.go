package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/controllers"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/middleware"
)

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// RegisterHandlers attaches all v1 routes with their auth requirements.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	auth := router.Group("/auth")
	auth.Post("/register", controllers.HandleAuthRegister)
	auth.Get("/activate", controllers.HandleAuthActivate)
	auth.Post("/login", controllers.HandleAuthLogin)
	auth.Post("/logout", controllers.HandleAuthLogout)

	payments := router.Group("/payments")
	// Webhook authenticates via HMAC signature, not via session.
	payments.Post("/webhook", controllers.HandlePaymentWebhook)
	payments.Post("/verify", middleware.APIKeyOrSessionAuth(), controllers.HandlePaymentVerify)

	checkoutGroup := router.Group("/checkout", middleware.RequireAuth)
	checkoutGroup.Post("/sessions", controllers.HandleCheckoutStart)
	checkoutGroup.Delete("/sessions/:token", controllers.HandleCheckoutCancel)

	creditsGroup := router.Group("/credits", middleware.APIKeyOrSessionAuth())
	creditsGroup.Get("/balance", controllers.HandleGetBalance)
	creditsGroup.Get("/ledger", controllers.HandleGetLedger)
	creditsGroup.Post("/consume", controllers.HandleConsumeCredits)

	orders := router.Group("/orders")
	orders.Get("/", middleware.APIKeyOrSessionAuth(), controllers.HandleListOrders)
	orders.Get("/:uuid", middleware.APIKeyOrSessionAuth(), controllers.HandleGetOrder)
	// Pipeline callbacks authenticate with the shared service key, never with
	// a customer session or personal API key.
	orders.Patch("/:uuid/status", middleware.RequirePipelineKey(), controllers.HandleUpdateOrderStatus)

	user := router.Group("/user")
	user.Get("/profile", middleware.APIKeyOrSessionAuth(), controllers.HandleGetUserAccount)
	user.Post("/api-key", middleware.RequireAuth, controllers.HandleIssueAPIKey)
	user.Delete("/api-key", middleware.RequireAuth, controllers.HandleRevokeAPIKey)
	user.Patch("/preferences", middleware.RequireAuth, controllers.HandleUpdateNotificationPrefs)
	user.Get("/notifications", middleware.RequireAuth, controllers.HandleListNotifications)
	user.Post("/notifications/:id/read", middleware.RequireAuth, controllers.HandleMarkNotificationRead)

	admin := router.Group("/admin", middleware.RequireAdmin)
	admin.Post("/credits/adjust", controllers.HandleAdminAdjustCredits)
	admin.Get("/payments/events", controllers.HandleAdminListPaymentEvents)
	admin.Post("/payments/sweep", controllers.HandleAdminRunStaleClaimSweep)
	admin.Get("/ledger/:user_id/audit", controllers.HandleAdminLedgerAudit)
	admin.Get("/metrics/outcomes", controllers.HandleAdminOutcomeCounters)
	admin.Get("/queue/stats", controllers.HandleAdminQueueStats)
}
