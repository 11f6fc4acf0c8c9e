package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
)

const defaultInterval = time.Minute

var errLeaseLost = errors.New("job lease lost")

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service ticks at Interval and runs every job that is due. Each job holds its
// own lock so replicas split the work instead of skipping whole cycles.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runCycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	for _, job := range s.registry.Jobs() {
		if !s.due(job) {
			continue
		}
		s.runLocked(ctx, job)
	}
}

func (s *Service) due(job Job) bool {
	every := cadence(job)
	if every <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[job.Name()]
	return !ok || !s.now().Before(last.Add(every))
}

func (s *Service) runLocked(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	lock, err := s.locks(job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "build job lock", err)
		return
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "acquire job lock", err)
		return
	}
	if !locked {
		s.logg.Debug(jobCtx, "job held by another instance; skipping")
		return
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(jobCtx)); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.mu.Lock()
	s.lastRun[job.Name()] = s.now()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancelCause(jobCtx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.keepLease(runCtx, lock, cancel)
	}()
	s.runJob(runCtx, job)
	cancel(nil)
	<-done
}

// keepLease renews lock at a third of its TTL until ctx ends. A lost lease
// cancels the job so two replicas never run it at once.
func (s *Service) keepLease(ctx context.Context, lock Lock, cancel context.CancelCauseFunc) {
	every := lock.TTL() / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := lock.Renew(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "job lease renewal failed")
				}
				continue
			}
			if !held {
				s.logg.Warn(ctx, "job lease lost; canceling run")
				cancel(errLeaseLost)
				return
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "event", "cron.job")
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.Observe(job.Name(), elapsed, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}
