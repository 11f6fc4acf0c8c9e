package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

const (
	defaultReconcileAfter = 5 * time.Minute
	defaultAbandonEvery   = time.Minute
)

type abandoner interface {
	AbandonExpired(ctx context.Context) (int, error)
}

type staleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// AbandonmentJobParams configure the unpaid order sweep.
type AbandonmentJobParams struct {
	Logger *logger.Logger
	Orders abandoner
	Every  time.Duration
}

// NewAbandonmentJob cancels orders that never received a payment handle and aged
// past the abandonment window.
func NewAbandonmentJob(params AbandonmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	every := params.Every
	if every <= 0 {
		every = defaultAbandonEvery
	}
	return &abandonmentJob{logg: params.Logger, orders: params.Orders, every: every}, nil
}

type abandonmentJob struct {
	logg   *logger.Logger
	orders abandoner
	every  time.Duration
}

func (j *abandonmentJob) Name() string         { return "order-abandonment" }
func (j *abandonmentJob) Every() time.Duration { return j.every }

func (j *abandonmentJob) Run(ctx context.Context) error {
	swept, err := j.orders.AbandonExpired(ctx)
	if swept > 0 {
		j.logg.Info(j.logg.WithField(ctx, "orders_abandoned", swept), "abandoned unpaid orders")
	}
	if err != nil {
		return fmt.Errorf("order abandonment: %w", err)
	}
	return nil
}

// ReconcileJobParams configure the payment reconciliation sweep.
type ReconcileJobParams struct {
	Logger   *logger.Logger
	Payments staleReconciler
	After    time.Duration
}

// NewReconcileJob polls the processor for referenced orders still awaiting
// payment, covering webhooks that never arrived.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReconcileAfter
	}
	return &reconcileJob{logg: params.Logger, payments: params.Payments, after: after}, nil
}

type reconcileJob struct {
	logg     *logger.Logger
	payments staleReconciler
	after    time.Duration
}

func (j *reconcileJob) Name() string { return "payment-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	advanced, err := j.payments.ReconcileStale(ctx, j.after)
	if advanced > 0 {
		j.logg.Info(j.logg.WithField(ctx, "orders_advanced", advanced), "reconciled stale payments")
	}
	if err != nil {
		return fmt.Errorf("payment reconcile: %w", err)
	}
	return nil
}
