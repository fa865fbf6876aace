package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heraldhq/herald/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type funcWorker struct {
	name string
	run  func(ctx context.Context) error
}

func (w *funcWorker) Name() string                { return w.name }
func (w *funcWorker) Run(ctx context.Context) error { return w.run(ctx) }

func TestSupervisor_GracefulShutdown(t *testing.T) {
	t.Parallel()

	var stopped atomic.Bool
	s := worker.NewSupervisor(zaptest.NewLogger(t))
	s.Register(&funcWorker{name: "blocker", run: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not drain")
	}
	assert.True(t, stopped.Load())
	assert.True(t, s.HealthTracker().IsHealthy())
}

func TestSupervisor_WorkerFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	s := worker.NewSupervisor(zaptest.NewLogger(t))
	s.Register(&funcWorker{name: "failing", run: func(ctx context.Context) error {
		return errors.New("boom")
	}})
	s.Register(&funcWorker{name: "healthy", run: func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, s.HealthTracker().IsHealthy())

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisor_DuplicateRegisterPanics(t *testing.T) {
	t.Parallel()

	s := worker.NewSupervisor(zaptest.NewLogger(t))
	s.Register(&funcWorker{name: "w", run: func(ctx context.Context) error { return nil }})
	assert.Panics(t, func() {
		s.Register(&funcWorker{name: "w", run: func(ctx context.Context) error { return nil }})
	})
}
