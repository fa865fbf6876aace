// Package app wires the service together: store connections, migrations,
// the delivery pipeline, its schedulers, and the HTTP API, all run under one
// worker supervisor.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/apirouter"
	"github.com/heraldhq/herald/internal/backoff"
	"github.com/heraldhq/herald/internal/config"
	"github.com/heraldhq/herald/internal/emailclient"
	"github.com/heraldhq/herald/internal/logging"
	"github.com/heraldhq/herald/internal/materializer"
	"github.com/heraldhq/herald/internal/messagestore/pgmessagestore"
	"github.com/heraldhq/herald/internal/migrator"
	"github.com/heraldhq/herald/internal/processor"
	"github.com/heraldhq/herald/internal/scheduler"
	"github.com/heraldhq/herald/internal/userstore"
	"github.com/heraldhq/herald/internal/version"
	"github.com/heraldhq/herald/internal/worker"
)

type App struct {
	cfg    *config.Config
	logger *logging.Logger
}

func New(cfg *config.Config, logger *logging.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. Startup failures (store unreachable,
// migrations failing) return an error; per-record failures at runtime never
// do.
func (a *App) Run(ctx context.Context) error {
	a.logger.Ctx(ctx).Info("starting herald",
		zap.String("version", version.Version()),
		zap.Int("port", a.cfg.Port))

	if err := a.migrate(ctx); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, a.cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("creating postgres pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	users := userstore.New(pool)
	messages := pgmessagestore.New(pool)

	client := emailclient.New(a.cfg.EmailServiceURL, a.logger,
		emailclient.WithAttemptTimeout(a.cfg.EmailTimeout()),
		emailclient.WithMaxRetries(a.cfg.EmailServiceMaxRetries),
		emailclient.WithBackoff(&backoff.ExponentialBackoff{
			Interval: a.cfg.EmailRetryDelay(),
			Base:     2,
		}),
		emailclient.WithBreakerSettings(a.cfg.CircuitBreakerThreshold, a.cfg.BreakerReset()),
	)

	mat := materializer.New(users, messages, a.logger,
		materializer.WithSendTime(a.cfg.BirthdayMessageHour, a.cfg.BirthdayMessageMinute))

	proc := processor.New(messages, users, client, a.logger,
		processor.WithMaxRetries(a.cfg.MessageMaxRetries),
		processor.WithBatchLimit(a.cfg.MessageBatchLimit),
		processor.WithLeaseDuration(a.cfg.LeaseDuration()))

	materializeInterval, err := a.cfg.MaterializeInterval()
	if err != nil {
		return err
	}
	processInterval, err := a.cfg.ProcessInterval()
	if err != nil {
		return err
	}

	supervisor := worker.NewSupervisor(a.logger,
		worker.WithShutdownTimeout(30*time.Second))

	supervisor.Register(scheduler.New("materialize-scheduler", materializeInterval,
		mat.MaterializeToday, a.logger,
		// Materialize once immediately so a fresh deploy doesn't wait out
		// the first interval.
		scheduler.WithStartupTask(mat.MaterializeToday)))

	supervisor.Register(scheduler.New("process-scheduler", processInterval,
		proc.ProcessDue, a.logger,
		scheduler.WithStartupTask(proc.Recover)))

	supervisor.Register(newAPIServer(
		fmt.Sprintf(":%d", a.cfg.Port),
		apirouter.New(users, supervisor.HealthTracker(), a.logger),
		a.logger))

	return supervisor.Run(ctx)
}

func (a *App) migrate(ctx context.Context) error {
	m, err := migrator.New(a.cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	applied, err := m.Up()
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if applied > 0 {
		a.logger.Ctx(ctx).Info("migrations applied", zap.Int("count", applied))
	}
	return nil
}

// apiServer adapts http.Server to the worker contract so it shares the
// supervisor's lifecycle with the schedulers.
type apiServer struct {
	server *http.Server
	logger *logging.Logger
}

func newAPIServer(addr string, handler http.Handler, logger *logging.Logger) *apiServer {
	return &apiServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *apiServer) Name() string {
	return "api-server"
}

func (s *apiServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down api server: %w", err)
		}
		return ctx.Err()
	}
}
