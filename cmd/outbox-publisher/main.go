package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/marketcart-backend/internal/app"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

func main() {
	rt := app.Start("outbox-publisher")
	defer rt.Close()

	boot := context.Background()
	dbClient := rt.Database(boot)
	pubsubClient := rt.PubSub(boot)

	service, err := NewService(ServiceParams{
		Config:     rt.Config,
		Logger:     rt.Logger,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		rt.Fatal(boot, "failed to create outbox publisher", err)
	}

	ctx, stop := rt.Signals(map[string]any{"topic": rt.Config.PubSub.DomainTopic})
	defer stop()
	rt.Logger.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "outbox publisher stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "outbox publisher shutting down gracefully")
}
