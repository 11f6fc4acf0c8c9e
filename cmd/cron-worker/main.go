package main

import (
	"context"
	"errors"
	"fmt"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcart-backend/internal/app"
	"github.com/angelmondragon/marketcart-backend/internal/cron"
	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
)

const lockPrefixFormat = "mc:cron-worker:%s"

func main() {
	rt := app.Start("cron-worker")
	defer rt.Close()

	boot := context.Background()
	dbClient := rt.Database(boot)
	redisClient := rt.Redis(boot)

	services, err := app.Build(boot, app.Params{
		Config:     rt.Config,
		Logger:     rt.Logger,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		rt.Fatal(boot, "failed to build services", err)
	}

	registry, err := buildRegistry(rt.Config, rt.Logger, dbClient, services)
	if err != nil {
		rt.Fatal(boot, "failed to register cron jobs", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: registry,
		Locks:    cron.NewLeaseFactory(redisClient, lockPrefix(rt.Config.App.Env), rt.Config.Cron.LockTTL),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: rt.Config.Cron.Interval,
	})
	if err != nil {
		rt.Fatal(boot, "failed to create cron service", err)
	}

	ctx, stop := rt.Signals(nil)
	defer stop()
	rt.Logger.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	abandonment, err := cron.NewAbandonmentJob(cron.AbandonmentJobParams{
		Logger: logg,
		Orders: services.Orders,
		Every:  cfg.Cron.Interval,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:   logg,
		Payments: services.Payments,
		After:    cfg.Cron.ReconcileAfter,
	})
	if err != nil {
		return nil, err
	}
	notificationRetention, err := cron.NewNotificationRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Notifications: services.NotificationRepo,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.RetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Outbox:      services.OutboxRepo,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(abandonment, reconcile, notificationRetention, outboxRetention)
}

func lockPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockPrefixFormat, env)
}
