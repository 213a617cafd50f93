package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/eventrouter/metric"
	"github.com/c360/eventrouter/routing"
)

// Runner owns the process lifecycle: it starts the routing engine and
// the HTTP surfaces, then shuts everything down in reverse order when
// the context is cancelled or any part fails.
type Runner struct {
	engine        *routing.Engine
	introspection *IntrospectionServer
	metrics       *metric.Server
	logger        *slog.Logger

	shutdownTimeout time.Duration
}

type RunnerOption func(*Runner)

// WithMetricsServer attaches a Prometheus scrape endpoint
func WithMetricsServer(server *metric.Server) RunnerOption {
	return func(r *Runner) { r.metrics = server }
}

// WithIntrospection attaches the read-side HTTP and websocket surface
func WithIntrospection(server *IntrospectionServer) RunnerOption {
	return func(r *Runner) { r.introspection = server }
}

// WithShutdownTimeout bounds how long Stop waits for in-flight work
func WithShutdownTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.shutdownTimeout = timeout }
}

func NewRunner(engine *routing.Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:          engine,
		logger:          slog.Default().With("component", "runner"),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is cancelled or a server fails, then performs
// an orderly shutdown. The engine must already be initialized.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.engine.Start(ctx); err != nil {
		return err
	}
	r.logger.Info("Routing engine started")

	group, groupCtx := errgroup.WithContext(ctx)

	if r.metrics != nil {
		group.Go(func() error {
			r.logger.Info("Metrics server starting")
			return r.metrics.Start()
		})
	}
	if r.introspection != nil {
		group.Go(func() error {
			r.logger.Info("Introspection server starting")
			return r.introspection.Start()
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		r.shutdown()
		return groupCtx.Err()
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) shutdown() {
	stopCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	if r.introspection != nil {
		if err := r.introspection.Stop(stopCtx); err != nil {
			r.logger.Warn("Introspection server shutdown error", "error", err)
		}
	}
	if r.metrics != nil {
		if err := r.metrics.Stop(); err != nil {
			r.logger.Warn("Metrics server shutdown error", "error", err)
		}
	}
	if err := r.engine.Stop(r.shutdownTimeout); err != nil {
		r.logger.Warn("Engine shutdown error", "error", err)
	}
	r.logger.Info("Shutdown complete")
}
