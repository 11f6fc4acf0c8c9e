package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/marketcart-backend/api/controllers"
	"github.com/angelmondragon/marketcart-backend/api/routes"
	"github.com/angelmondragon/marketcart-backend/internal/app"
	stripewebhook "github.com/angelmondragon/marketcart-backend/internal/webhooks/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	rt := app.Start("api")
	defer rt.Close()
	cfg := rt.Config

	boot := context.Background()
	dbClient := rt.Database(boot)
	redisClient := rt.Redis(boot)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := app.Build(boot, app.Params{
		Config:     cfg,
		Logger:     rt.Logger,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: registry,
	})
	if err != nil {
		rt.Fatal(boot, "failed to build services", err)
	}

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe")
	if err != nil {
		rt.Fatal(boot, "failed to create webhook guard", err)
	}

	server := &http.Server{
		Addr:              ":" + envOr("PORT", cfg.App.Port),
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   rt.Logger,
			Gatherer: registry,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Idempotency:   redisClient,
			RateLimiter:   redisClient,
			Cart:          services.Cart,
			Checkout:      services.Checkout,
			Orders:        services.Orders,
			Payments:      services.Payments,
			Slots:         services.Slots,
			Sellers:       services.Catalog,
			SameDay:       services.SameDay,
			Onboarding:    services.Payments,
			Payouts:       services.Payouts,
			Notifications: services.Notifications,
			StripeClient:  services.Stripe,
			StripeWebhook: services.StripeWebhook,
			WebhookGuard:  guard,
		}),
	}

	ctx, stop := rt.Signals(map[string]any{
		"addr":     server.Addr,
		"instance": envOr("DYNO", "local"),
	})
	defer stop()
	rt.Logger.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			rt.Fatal(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Error(ctx, "api server shutdown failed", err)
		}
		rt.Logger.Info(ctx, "api server shutting down gracefully")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
