package httpserver

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_Timeouts(t *testing.T) {
	s := New(Options{Addr: ":0", WriteTimeout: 45 * time.Second})
	if s.HTTP.WriteTimeout != 45*time.Second {
		t.Fatalf("write timeout override ignored: %s", s.HTTP.WriteTimeout)
	}
	if s.HTTP.ReadHeaderTimeout != 5*time.Second || s.HTTP.IdleTimeout != 60*time.Second {
		t.Fatalf("defaults not applied: %+v", s.HTTP)
	}
	if s.HTTP.Handler == nil {
		t.Fatal("router should default to an empty chi router")
	}
}

func TestStart_CleanShutdownReturnsNil(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0"})
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected nil after shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
