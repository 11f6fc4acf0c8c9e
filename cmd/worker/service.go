package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

const (
	defaultReadyAttempts = 5
	defaultReadyDelay    = 2 * time.Second
)

type runner interface {
	Run(context.Context) error
}

// Dependency is something the consumer cannot work without.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Consumer     runner
	// ReadyAttempts bounds how many times each dependency is pinged before
	// the worker gives up. Zero means the default.
	ReadyAttempts int
	ReadyDelay    time.Duration
}

// Service waits for its dependencies and then runs the domain event consumer.
type Service struct {
	logg     *logger.Logger
	deps     []Dependency
	consumer runner
	attempts int
	delay    time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("consumer is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Name == "" || dep.Ping == nil {
			return nil, fmt.Errorf("dependency %q needs a name and a ping", dep.Name)
		}
	}
	svc := &Service{
		logg:     params.Logger,
		deps:     params.Dependencies,
		consumer: params.Consumer,
		attempts: params.ReadyAttempts,
		delay:    params.ReadyDelay,
	}
	if svc.attempts <= 0 {
		svc.attempts = defaultReadyAttempts
	}
	if svc.delay <= 0 {
		svc.delay = defaultReadyDelay
	}
	return svc, nil
}

func (s *Service) waitReady(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := s.waitFor(ctx, dep); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

func (s *Service) waitFor(ctx context.Context, dep Dependency) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = dep.Ping(ctx); err == nil {
			return nil
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"dependency": dep.Name,
			"attempt":    attempt,
		}), "dependency not ready: "+err.Error())
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s not ready after %d attempts: %w", dep.Name, s.attempts, err)
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.waitReady(ctx); err != nil {
		s.logg.Error(ctx, "worker readiness failed", err)
		return err
	}
	err := s.consumer.Run(ctx)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
	}
	return err
}
