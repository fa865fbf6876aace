// Package scheduler drives the materialiser and due processor at fixed
// cadences. Ticks never overlap within a process: if a tick is still running
// when the next one fires, the new tick is skipped and logged. Coordination
// across replicas is the store's job, not ours.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heraldhq/herald/internal/logging"
	"go.uber.org/zap"
)

// Task is one tick's worth of work. Errors are logged at the tick boundary
// and never crash the process.
type Task func(ctx context.Context) error

// Scheduler runs a Task on a fixed interval. It implements worker.Worker.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	startup  Task
	logger   *logging.Logger

	running  atomic.Bool
	inFlight sync.WaitGroup
}

type Option func(*Scheduler)

// WithStartupTask registers a one-shot task that runs before the first tick.
// Used for the missed-delivery recovery pass.
func WithStartupTask(task Task) Option {
	return func(s *Scheduler) {
		s.startup = task
	}
}

func New(name string, interval time.Duration, task Task, logger *logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Name() string {
	return s.name
}

// Run executes the startup task, then ticks until the context is cancelled.
// On cancellation it waits for the in-flight tick to return before exiting.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.startup != nil {
		if err := s.startup(ctx); err != nil {
			s.logger.Ctx(ctx).Error("startup task failed",
				zap.String("scheduler", s.name),
				zap.Error(err))
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.inFlight.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Ctx(ctx).Warn("previous tick still running, skipping",
			zap.String("scheduler", s.name))
		return
	}
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer s.running.Store(false)
		if err := s.task(ctx); err != nil && ctx.Err() == nil {
			s.logger.Ctx(ctx).Error("tick failed",
				zap.String("scheduler", s.name),
				zap.Error(err))
		}
	}()
}
