package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/controllers"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/cache"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/checkout"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/credits"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/database"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/env"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/jobqueue"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/middleware"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/notify"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/payments"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Wire the reconciliation stack into the controllers.
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	creditsSvc := credits.NewService(repos.Ledger)
	registry := payments.NewRegistry(repos.PaymentEvent, payments.DefaultReclaimGrace)
	notifier := notify.NewQueueNotifier(jobqueue.GetManager().GetQueue())
	engine := payments.NewEngine(registry, creditsSvc, repos.Order, repos.User, notifier)
	provider := payments.NewHTTPProviderClient(
		env.GetEnv("PAYMENT_PROVIDER_API_URL", "https://api.stripe.com"),
		env.GetEnv("PAYMENT_PROVIDER_API_KEY", ""),
		models.PaymentProviderStripe,
	)

	redisClient := cache.GetClient()
	locks := checkout.NewLockManager(redisClient, checkout.DefaultLockTTL)
	carts := checkout.NewSessions(redisClient, checkout.DefaultCartTTL)

	controllers.InitPaymentsController(engine, provider)
	controllers.InitCheckoutController(locks, carts)
	controllers.InitCreditsController(creditsSvc, notifier)

	// Lightweight liveness endpoint for deployments.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
