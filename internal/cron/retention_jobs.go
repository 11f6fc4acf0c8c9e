package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

const (
	notificationRetention = 30 * 24 * time.Hour
	outboxRetention       = 14 * 24 * time.Hour
	outboxMinAttempts     = 5
	retentionEvery        = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type readNotificationPruner interface {
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type settledOutboxPruner interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

// RetentionJobParams configure the daily pruning jobs.
type RetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Notifications readNotificationPruner
	Outbox        settledOutboxPruner
	// Retention overrides the per-job default age.
	Retention   time.Duration
	MinAttempts int
}

// pruneJob deletes rows older than its retention inside one transaction.
type pruneJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	prune     func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	now       func() time.Time
}

// NewNotificationRetentionJob removes read notifications after the retention window.
func NewNotificationRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newPruneJob("notification-retention", params, notificationRetention, params.Notifications.DeleteReadBefore)
}

// NewOutboxRetentionJob removes delivered or dead outbox rows after the retention window.
func NewOutboxRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	return newPruneJob("outbox-retention", params, outboxRetention, func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return params.Outbox.DeleteSettledBefore(ctx, tx, cutoff, minAttempts)
	})
}

func newPruneJob(name string, params RetentionJobParams, fallback time.Duration, prune func(context.Context, *gorm.DB, time.Time) (int64, error)) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = fallback
	}
	return &pruneJob{name: name, logg: params.Logger, db: params.DB, retention: retention, prune: prune, now: time.Now}, nil
}

func (j *pruneJob) Name() string         { return j.name }
func (j *pruneJob) Every() time.Duration { return retentionEvery }

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
