package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/internal/catalog"
	"github.com/angelmondragon/marketcart-backend/internal/checkout"
	"github.com/angelmondragon/marketcart-backend/internal/cutoff"
	"github.com/angelmondragon/marketcart-backend/internal/discounts"
	"github.com/angelmondragon/marketcart-backend/internal/notifications"
	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/internal/payouts"
	"github.com/angelmondragon/marketcart-backend/internal/slots"
	stripewebhook "github.com/angelmondragon/marketcart-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
	"github.com/angelmondragon/marketcart-backend/pkg/money"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/marketcart-backend/pkg/stripe"
)

// Params are the shared infrastructure handles every binary opens on boot.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the checkout service graph. The api and cron-worker binaries share it.
type Services struct {
	Catalog          *catalog.Repository
	Cart             *cart.Service
	Slots            *slots.Ledger
	SameDay          *cutoff.Policy
	Discounts        *discounts.Service
	Orders           orders.Service
	Payments         *payments.Service
	Checkout         checkout.Service
	Payouts          payouts.Service
	Notifications    notifications.Service
	NotificationRepo notifications.Repository
	OutboxRepo       *outbox.Repository
	Stripe           *pkgstripe.Client
	StripeWebhook    *stripewebhook.Service
	Metrics          *metrics.CheckoutMetrics
}

func Build(ctx context.Context, params Params) (*Services, error) {
	cfg := params.Config
	logg := params.Logger
	if cfg == nil || params.DB == nil || params.Redis == nil {
		return nil, fmt.Errorf("config, db and redis are required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	conn := params.DB.DB()

	rate, err := cfg.Checkout.CommissionRate()
	if err != nil {
		return nil, fmt.Errorf("commission rate: %w", err)
	}
	rates, err := cfg.Payout.Rates()
	if err != nil {
		return nil, fmt.Errorf("payout fx rates: %w", err)
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(params.Registerer)

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	catalogRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	cartSvc, err := cart.NewService(cartRepo, catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	ledger, err := slots.NewLedger(slots.LedgerParams{
		DB:      conn,
		LockTTL: cfg.Checkout.SlotLockTTL,
		Logger:  logg,
		Metrics: checkoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("slot ledger: %w", err)
	}
	policy := cutoff.NewPolicy(nil)

	splitter, err := cart.NewSplitter(catalogRepo, ledger, policy, logg)
	if err != nil {
		return nil, fmt.Errorf("cart splitter: %w", err)
	}

	rewards, err := discounts.NewService(discounts.ServiceParams{
		DB:              conn,
		Logger:          logg,
		PointValueCents: cfg.Checkout.PointValueCents,
		PointsPerUnit:   cfg.Checkout.PointsPerUnit,
	})
	if err != nil {
		return nil, fmt.Errorf("discounts service: %w", err)
	}

	notificationRepo := notifications.NewRepository(conn)
	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	qr, err := orders.NewQRSigner(cfg.Pickup.QRSecret)
	if err != nil {
		return nil, fmt.Errorf("pickup qr signer: %w", err)
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:         orderRepo,
		Tx:           params.DB,
		Outbox:       outboxSvc,
		Slots:        ledger,
		Points:       rewards,
		Cart:         cartRepo,
		Catalog:      catalogRepo,
		Notifier:     notifications.NewNotifier(notificationRepo, logg),
		QR:           qr,
		Logger:       logg,
		Metrics:      checkoutMetrics,
		DefaultRate:  rate,
		AbandonAfter: cfg.Checkout.OrderAbandonAfter,
		PickupMaxAge: cfg.Pickup.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	processor, err := payments.NewStripeProcessor(stripeClient)
	if err != nil {
		return nil, fmt.Errorf("stripe processor: %w", err)
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:       payments.NewRepository(conn),
		Orders:     orderRepo,
		Fulfiller:  orderSvc,
		Processor:  processor,
		States:     params.Redis,
		Tx:         params.DB,
		Outbox:     outboxSvc,
		Logger:     logg,
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
		RefreshURL: cfg.Onboarding.RefreshURL,
		ReturnURL:  cfg.Onboarding.ReturnURL,
		StateTTL:   cfg.Onboarding.StateTTL,
		HandleTTL:  cfg.Checkout.OrderAbandonAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:        params.DB,
		Lines:     cartRepo,
		Splitter:  splitter,
		Allocator: rewards,
		Orders:    orderRepo,
		Payments:  paymentSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
		Metrics:   checkoutMetrics,
		Currency:  cfg.Checkout.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:      payouts.NewRepository(conn),
		Tx:        params.DB,
		Outbox:    outboxSvc,
		Processor: processor,
		Converter: money.NewConverter(cfg.Payout.BaseCurrency, rates),
		Logger:    logg,
		Metrics:   checkoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: paymentSvc,
		Accounts: paymentSvc,
		Payouts:  payoutSvc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe webhook service: %w", err)
	}

	return &Services{
		Catalog:          catalogRepo,
		Cart:             cartSvc,
		Slots:            ledger,
		SameDay:          policy,
		Discounts:        rewards,
		Orders:           orderSvc,
		Payments:         paymentSvc,
		Checkout:         checkoutSvc,
		Payouts:          payoutSvc,
		Notifications:    notificationSvc,
		NotificationRepo: notificationRepo,
		OutboxRepo:       outboxRepo,
		Stripe:           stripeClient,
		StripeWebhook:    webhookSvc,
		Metrics:          checkoutMetrics,
	}, nil
}
