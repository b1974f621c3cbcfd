// Package run supervises a service process: the foreground server, its
// background workers and the shutdown sequence.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration

	workers sync.WaitGroup
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives and
// returns the process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		r.Logger.Error("service exited with error", zap.Error(err))
		return 1
	}
}

// Go runs a background worker until ctx is cancelled. A worker returning
// early is logged, not fatal: the API keeps serving without it.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		r.Logger.Info("worker starting", zap.String("worker", name))
		err := fn(ctx)
		switch {
		case err != nil:
			r.Logger.Error("worker stopped", zap.String("worker", name), zap.Error(err))
		case ctx.Err() == nil:
			r.Logger.Warn("worker returned before shutdown", zap.String("worker", name))
		default:
			r.Logger.Info("worker stopped", zap.String("worker", name))
		}
	}()
}

// Graceful calls each shutdown hook with a shared deadline, then waits for
// workers started with Go until the same deadline.
func (r *Runner) Graceful(hooks ...func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			r.Logger.Warn("shutdown hook failed", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.Logger.Warn("workers did not stop before the shutdown deadline")
	}
}

func Exit(code int) {
	os.Exit(code)
}
