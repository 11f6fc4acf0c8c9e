package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/migrate"
	"github.com/angelmondragon/marketcart-backend/pkg/pubsub"
	"github.com/angelmondragon/marketcart-backend/pkg/redis"
)

// Runtime is the process plumbing shared by every binary: config, logger and the
// infrastructure clients it opened, closed in reverse order on exit.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Start loads .env and config and builds the service logger. It exits the
// process when config cannot be loaded.
func Start(kind string) *Runtime {
	rt := &Runtime{Kind: kind, Logger: logger.New(logger.Options{ServiceName: kind})}

	if err := godotenv.Load(); err != nil {
		rt.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		rt.Fatal(context.Background(), "failed to load config", err)
	}
	cfg.Service.Kind = kind

	rt.Config = cfg
	rt.Logger = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return rt
}

// Fatal logs err, closes whatever was opened and exits with status 1.
func (rt *Runtime) Fatal(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	rt.Close()
	os.Exit(1)
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

// Close releases opened clients, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	rt.closers = nil
}

// Database opens the gorm pool and applies pending migrations in dev.
func (rt *Runtime) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}
	rt.onClose("database", client.Close)

	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client); err != nil {
		rt.Fatal(ctx, "failed to run dev migrations", err)
	}
	return client
}

func (rt *Runtime) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap redis", err)
	}
	rt.onClose("redis", client.Close)
	return client
}

func (rt *Runtime) PubSub(ctx context.Context) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap pubsub", err)
	}
	rt.onClose("pubsub client", client.Close)
	return client
}

// Signals returns a context canceled on SIGINT or SIGTERM, tagged with the
// environment and service kind plus any extra fields.
func (rt *Runtime) Signals(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	tags := map[string]any{"env": rt.Config.App.Env, "serviceKind": rt.Kind}
	for k, v := range fields {
		tags[k] = v
	}
	return rt.Logger.WithFields(ctx, tags), stop
}
