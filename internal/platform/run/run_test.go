package run

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRun_ExitCodes(t *testing.T) {
	r := New(zap.NewNop())
	ctx := context.Background()

	if code := r.run(ctx, func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("nil error: %d", code)
	}
	if code := r.run(ctx, func(context.Context) error { return http.ErrServerClosed }); code != 0 {
		t.Fatalf("server closed: %d", code)
	}
	if code := r.run(ctx, func(context.Context) error { return errors.New("boom") }); code != 1 {
		t.Fatalf("failure: %d", code)
	}
}

func TestRun_Cancelled(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)
	code := r.run(ctx, func(context.Context) error { <-block; return nil })
	if code != 0 {
		t.Fatalf("cancelled: %d", code)
	}
}

func TestGraceful_RunsAllHooks(t *testing.T) {
	r := New(zap.NewNop())
	calls := 0
	r.Graceful(
		func(context.Context) error { calls++; return errors.New("x") },
		func(context.Context) error { calls++; return nil },
	)
	if calls != 2 {
		t.Fatalf("expected 2 hooks, got %d", calls)
	}
}

func TestGo_GracefulWaitsForWorkers(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	r.Go(ctx, "ticker", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})
	cancel()
	r.Graceful()
	select {
	case <-stopped:
	default:
		t.Fatal("Graceful returned before the worker stopped")
	}
}

func TestGraceful_WorkerDeadline(t *testing.T) {
	r := New(zap.NewNop())
	r.ShutdownTimeout = 10 * time.Millisecond
	block := make(chan struct{})
	defer close(block)
	r.Go(context.Background(), "stuck", func(context.Context) error { <-block; return nil })

	start := time.Now()
	r.Graceful()
	if time.Since(start) > time.Second {
		t.Fatal("Graceful ignored its deadline")
	}
}
