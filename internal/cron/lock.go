package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 5 * time.Minute

// Lock is an exclusive, expiring claim on one job across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Renew pushes the expiry out by the lease TTL. It reports false once the
	// lease has been lost to expiry.
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	TTL() time.Duration
}

// LockFactory hands out one lock per job name.
type LockFactory func(job string) (Lock, error)

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Lease is a redis-backed Lock. The key holds a random token per acquisition so
// renew and release never touch a lease that passed to another replica.
type Lease struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

func NewLease(store leaseStore, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store required")
	case key == "":
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Lease{store: store, key: key, ttl: ttl}, nil
}

// NewLeaseFactory keys each job's lease as prefix:job.
func NewLeaseFactory(store leaseStore, prefix string, ttl time.Duration) LockFactory {
	return func(job string) (Lock, error) {
		return NewLease(store, prefix+":"+job, ttl)
	}
}

func (l *Lease) TTL() time.Duration { return l.ttl }

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *Lease) Renew(ctx context.Context) (bool, error) {
	if l.token == "" {
		return false, nil
	}
	ok, err := l.store.CompareAndExpire(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("renew %s: %w", l.key, err)
	}
	if !ok {
		l.token = ""
	}
	return ok, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
