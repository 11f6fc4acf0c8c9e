package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev with
// MARKETCART_AUTO_MIGRATE set. The SQL is postgres only, so sqlite dev databases
// are left alone.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "skipping dev migrations on sqlite")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ran, err := Up(ctx, sqlDB, Embedded())
	if err != nil {
		return err
	}
	versions := make([]int64, 0, len(ran))
	for _, step := range ran {
		versions = append(versions, step.Version)
	}
	logg.Info(logg.WithField(ctx, "applied", versions), "dev migrations applied")
	return nil
}
