package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set compiled into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			fail(ctx, logg, "missing -name", nil)
		}
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(out, *name, time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(*dir)); err != nil {
			fail(ctx, logg, "migration validation", err)
		}
		logg.Info(ctx, "migrations valid")
		return
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		fail(ctx, logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "sql handle", err)
	}
	source := migrate.Source(*dir)

	var ran []migrate.Applied
	switch *cmd {
	case "up":
		ran, err = migrate.Up(ctx, sqlDB, source)
	case "down":
		ran, err = migrate.Down(ctx, sqlDB, source)
	case "to":
		version, parseErr := strconv.ParseInt(*target, 10, 64)
		if parseErr != nil {
			fail(ctx, logg, "invalid -version", parseErr)
		}
		ran, err = migrate.To(ctx, sqlDB, source, version)
	case "status":
		states, statusErr := migrate.Status(ctx, sqlDB, source)
		if statusErr != nil {
			fail(ctx, logg, "migration status", statusErr)
		}
		for _, state := range states {
			applied := "pending"
			if state.Applied {
				applied = state.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%d  %-28s  %s\n", state.Version, applied, state.Path)
		}
		return
	default:
		fail(ctx, logg, "unknown -cmd "+*cmd, nil)
	}

	for _, step := range ran {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     step.Version,
			"path":        step.Path,
			"duration_ms": step.Duration.Milliseconds(),
		}), "migration applied")
	}
	if err != nil {
		fail(ctx, logg, "migration failed", err)
	}
	logg.Info(logg.WithField(ctx, "steps", len(ran)), "migrations complete")
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
