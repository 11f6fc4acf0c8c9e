package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

type memoryRedis struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryRedis() *memoryRedis { return &memoryRedis{values: map[string]string{}} }

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndExpire(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key] == value, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryRedis) expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

type testJob struct {
	name  string
	err   error
	every time.Duration
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type periodicJob struct{ *testJob }

func (p periodicJob) Every() time.Duration { return p.every }

func newTestService(t *testing.T, store *memoryRedis, clock *time.Time, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Locks:    NewLeaseFactory(store, "mc:cron", time.Minute),
		Now:      func() time.Time { return *clock },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	clock := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	service := newTestService(t, newMemoryRedis(), &clock, ok, failing)

	service.runCycle(context.Background())
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
}

func TestRunCycleHonoursJobCadence(t *testing.T) {
	clock := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	daily := &testJob{name: "daily", every: 24 * time.Hour}
	everyTick := &testJob{name: "tick"}
	service := newTestService(t, newMemoryRedis(), &clock, periodicJob{daily}, everyTick)

	service.runCycle(context.Background())
	clock = clock.Add(time.Hour)
	service.runCycle(context.Background())
	if daily.runs != 1 {
		t.Fatalf("expected daily job to wait, ran %d", daily.runs)
	}
	if everyTick.runs != 2 {
		t.Fatalf("expected tick job to run each cycle, ran %d", everyTick.runs)
	}
	clock = clock.Add(23 * time.Hour)
	service.runCycle(context.Background())
	if daily.runs != 2 {
		t.Fatalf("expected daily job to run again after a day, ran %d", daily.runs)
	}
}

func TestRunCycleSkipsJobsLockedElsewhere(t *testing.T) {
	clock := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	store := newMemoryRedis()
	store.values["mc:cron:busy"] = "other-replica"
	busy := &testJob{name: "busy"}
	free := &testJob{name: "free"}
	service := newTestService(t, store, &clock, busy, free)

	service.runCycle(context.Background())
	if busy.runs != 0 {
		t.Fatalf("expected locked job to be skipped")
	}
	if free.runs != 1 {
		t.Fatalf("expected free job to run")
	}
	if _, held := store.values["mc:cron:free"]; held {
		t.Fatalf("expected free job lock to be released")
	}
	if store.values["mc:cron:busy"] != "other-replica" {
		t.Fatalf("foreign lock must be left alone")
	}
}

func TestLeaseReleaseIgnoresForeignOwner(t *testing.T) {
	store := newMemoryRedis()
	lease, err := NewLease(store, "mc:cron:job", time.Minute)
	if err != nil {
		t.Fatalf("new lease: %v", err)
	}
	ok, err := lease.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}
	store.values["mc:cron:job"] = "someone-else"
	held, err := lease.Renew(context.Background())
	if err != nil || held {
		t.Fatalf("renew of a stolen lease must report lost, got %v %v", held, err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["mc:cron:job"] != "someone-else" {
		t.Fatalf("release removed a lease it no longer owned")
	}
}

// blockingJob runs until its context ends and records why.
type blockingJob struct {
	name    string
	started chan struct{}
	cause   error
}

func (b *blockingJob) Name() string { return b.name }

func (b *blockingJob) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	b.cause = context.Cause(ctx)
	return ctx.Err()
}

func TestLostLeaseCancelsRunningJob(t *testing.T) {
	store := newMemoryRedis()
	job := &blockingJob{name: "slow", started: make(chan struct{})}
	registry, err := NewRegistry(job)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Locks:    NewLeaseFactory(store, "mc:cron", 30*time.Millisecond),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		service.runCycle(context.Background())
		close(finished)
	}()
	<-job.started
	store.expire("mc:cron:slow")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job kept running after its lease was lost")
	}
	if !errors.Is(job.cause, errLeaseLost) {
		t.Fatalf("expected lease-lost cause, got %v", job.cause)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry, err := NewRegistry(&testJob{name: "a"}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected nil jobs to be dropped, got %d", len(jobs))
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if err := registry.Register(&testJob{name: " a "}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if _, err := NewRegistry(&testJob{name: ""}); err == nil {
		t.Fatal("expected empty name to be rejected")
	}
}

type fakeAbandoner struct {
	swept int
	err   error
}

func (f *fakeAbandoner) AbandonExpired(context.Context) (int, error) { return f.swept, f.err }

type fakeReconciler struct {
	olderThan time.Duration
	err       error
}

func (f *fakeReconciler) ReconcileStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return 1, f.err
}

func TestCheckoutJobs(t *testing.T) {
	abandon, err := NewAbandonmentJob(AbandonmentJobParams{Logger: logger.Nop(), Orders: &fakeAbandoner{swept: 3}})
	if err != nil {
		t.Fatalf("abandonment job: %v", err)
	}
	if err := abandon.Run(context.Background()); err != nil {
		t.Fatalf("run abandonment: %v", err)
	}
	if cadence(abandon) != defaultAbandonEvery {
		t.Fatalf("unexpected abandonment cadence %s", cadence(abandon))
	}

	failing, _ := NewAbandonmentJob(AbandonmentJobParams{Logger: logger.Nop(), Orders: &fakeAbandoner{err: errors.New("db down")}})
	if err := failing.Run(context.Background()); err == nil {
		t.Fatal("expected abandonment error")
	}

	reconciler := &fakeReconciler{}
	reconcile, err := NewReconcileJob(ReconcileJobParams{Logger: logger.Nop(), Payments: reconciler, After: 10 * time.Minute})
	if err != nil {
		t.Fatalf("reconcile job: %v", err)
	}
	if err := reconcile.Run(context.Background()); err != nil {
		t.Fatalf("run reconcile: %v", err)
	}
	if reconciler.olderThan != 10*time.Minute {
		t.Fatalf("expected reconcile window to pass through, got %s", reconciler.olderThan)
	}

	if _, err := NewReconcileJob(ReconcileJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing payments error")
	}
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakePruner struct {
	cutoff      time.Time
	minAttempts int
	err         error
}

func (f *fakePruner) DeleteReadBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 4, f.err
}

func (f *fakePruner) DeleteSettledBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttempts
	return 2, f.err
}

func TestRetentionJobsComputeCutoff(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}

	job, err := NewNotificationRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: fakeTxRunner{}, Notifications: pruner})
	if err != nil {
		t.Fatalf("notification job: %v", err)
	}
	job.(*pruneJob).now = func() time.Time { return now }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !pruner.cutoff.Equal(now.Add(-notificationRetention)) {
		t.Fatalf("unexpected cutoff %s", pruner.cutoff)
	}

	outboxJob, err := NewOutboxRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: fakeTxRunner{}, Outbox: pruner})
	if err != nil {
		t.Fatalf("outbox job: %v", err)
	}
	outboxJob.(*pruneJob).now = func() time.Time { return now }
	if err := outboxJob.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !pruner.cutoff.Equal(now.Add(-outboxRetention)) || pruner.minAttempts != outboxMinAttempts {
		t.Fatalf("unexpected outbox prune args %s %d", pruner.cutoff, pruner.minAttempts)
	}
	if cadence(outboxJob) != retentionEvery {
		t.Fatalf("expected daily cadence")
	}

	pruner.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}
