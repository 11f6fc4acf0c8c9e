package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcart-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/cart"
	notificationcontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/notifications"
	ordercontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/orders"
	sellercontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/sellers"
	slotcontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/slots"
	webhookcontrollers "github.com/angelmondragon/marketcart-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketcart-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketcart-backend/internal/checkout"
	"github.com/angelmondragon/marketcart-backend/internal/notifications"
	"github.com/angelmondragon/marketcart-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/marketcart-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

type stripeSigner interface {
	SigningSecret() string
}

// Deps carries everything the HTTP surface routes to. Services left nil answer
// with a 500 from their handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Pingers     map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	Idempotency middleware.ResponseStore
	RateLimiter middleware.WindowLimiter

	Cart          cartcontrollers.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Payments      ordercontrollers.PaymentService
	Slots         slotcontrollers.Ledger
	Sellers       slotcontrollers.SellerDirectory
	SameDay       slotcontrollers.SameDayPolicy
	Onboarding    sellercontrollers.Onboarder
	Payouts       sellercontrollers.PayoutService
	Notifications notifications.Service

	StripeClient  stripeSigner
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookGuard  *stripewebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, webhookGuard(deps.WebhookGuard), logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		throttle := func(scope string) func(http.Handler) http.Handler {
			return middleware.RateLimit(deps.RateLimiter, scope, cfg.Checkout.RateLimit, cfg.Checkout.RateWindow, logg)
		}

		r.Get("/ping", controllers.PrivatePing())

		r.Get("/sellers/{sellerId}/slots", slotcontrollers.Available(deps.Slots, deps.Sellers, logg))
		r.Get("/sellers/{sellerId}/same-day", slotcontrollers.SameDay(deps.Sellers, deps.SameDay, logg))
		r.With(throttle("slot-locks")).Post("/slot-locks", slotcontrollers.Lock(deps.Slots, logg))
		r.Delete("/slot-locks", slotcontrollers.Unlock(deps.Slots, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Post("/lines", cartcontrollers.CartAddLine(deps.Cart, logg))
			r.Delete("/lines/{lineId}", cartcontrollers.CartRemoveLine(deps.Cart, logg))
		})

		r.With(throttle("checkout")).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		r.Get("/checkout/{checkoutId}", controllers.CheckoutDetail(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.CancelOrder(deps.Orders, logg))
			r.Get("/{orderId}/pickup-code", ordercontrollers.PickupCode(deps.Orders, logg))
			r.Post("/{orderId}/retry-payment", ordercontrollers.RetryPayment(deps.Payments, logg))
			r.Post("/{orderId}/reconcile", ordercontrollers.Reconcile(deps.Orders, deps.Payments, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationcontrollers.List(deps.Notifications, logg))
			r.Post("/read", notificationcontrollers.MarkBatch(deps.Notifications, logg))
			r.Post("/read-all", notificationcontrollers.MarkAll(deps.Notifications, logg))
			r.Post("/{notificationId}/read", notificationcontrollers.MarkOne(deps.Notifications, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireSeller(logg))

			r.Get("/orders", ordercontrollers.SellerList(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/orders/{orderId}/ready", ordercontrollers.MarkReady(deps.Orders, logg))
			r.Post("/orders/{orderId}/cancel", ordercontrollers.CancelOrder(deps.Orders, logg))
			r.Post("/pickups/scan", ordercontrollers.ScanPickup(deps.Orders, logg))

			r.Put("/schedule", slotcontrollers.PutSchedule(deps.Slots, logg))
			r.Put("/day-slots", slotcontrollers.PutDaySlots(deps.Slots, logg))
			r.Post("/blocks", slotcontrollers.CreateBlock(deps.Slots, logg))
			r.Delete("/blocks/{blockId}", slotcontrollers.DeleteBlock(deps.Slots, logg))
			r.Get("/slot-grid", slotcontrollers.Grid(deps.Slots, logg))

			r.Post("/onboarding", sellercontrollers.StartOnboarding(deps.Onboarding, logg))
			r.Get("/onboarding/complete", sellercontrollers.CompleteOnboarding(deps.Onboarding, logg))

			r.Get("/balance", sellercontrollers.PayoutBalance(deps.Payouts, logg))
			r.Get("/payouts", sellercontrollers.PayoutList(deps.Payouts, logg))
			r.Post("/payouts", sellercontrollers.RequestPayout(deps.Payouts, logg))
		})
	})

	return r
}

// webhookGuard keeps a nil guard pointer from reaching the handler as a non-nil interface.
func webhookGuard(guard *stripewebhook.IdempotencyGuard) interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
} {
	if guard == nil {
		return nil
	}
	return guard
}
