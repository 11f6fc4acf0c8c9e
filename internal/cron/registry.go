package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Job is one unit of scheduled work. Names double as lease keys and metric
// labels, so they must be unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs declare their own cadence. Jobs without one run every tick.
type Periodic interface {
	Every() time.Duration
}

type Registry struct {
	jobs []Job
}

// NewRegistry registers jobs in order. Nil jobs are skipped.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("cron job name required")
	}
	if slices.Contains(r.Names(), name) {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, strings.TrimSpace(job.Name()))
	}
	return names
}

func cadence(job Job) time.Duration {
	if periodic, ok := job.(Periodic); ok {
		return periodic.Every()
	}
	return 0
}
