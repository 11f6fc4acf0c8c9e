package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/marketcart-backend/internal/app"
	"github.com/angelmondragon/marketcart-backend/internal/catalog"
	"github.com/angelmondragon/marketcart-backend/internal/notifications"
)

func main() {
	rt := app.Start("worker")
	defer rt.Close()

	boot := context.Background()
	dbClient := rt.Database(boot)
	redisClient := rt.Redis(boot)
	pubsubClient := rt.PubSub(boot)

	subscription := pubsubClient.DomainSubscriber()
	if subscription == nil {
		rt.Fatal(boot, "domain subscription not configured", errors.New("MARKETCART_PUBSUB_DOMAIN_SUBSCRIPTION is empty"))
	}

	consumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Subscription: subscription,
		Sellers:      catalog.NewRepository(dbClient.DB()),
		Sender:       notifications.NewNotifier(notifications.NewRepository(dbClient.DB()), rt.Logger),
		Processed:    redisClient,
		Logger:       rt.Logger,
	})
	if err != nil {
		rt.Fatal(boot, "failed to create notification consumer", err)
	}

	service, err := NewService(ServiceParams{
		Logger: rt.Logger,
		Dependencies: []Dependency{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Consumer: consumer,
	})
	if err != nil {
		rt.Fatal(boot, "failed to create worker", err)
	}

	ctx, stop := rt.Signals(map[string]any{"subscription": rt.Config.PubSub.DomainSubscription})
	defer stop()
	rt.Logger.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "worker stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "worker shutting down gracefully")
}
