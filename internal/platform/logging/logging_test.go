package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_FallsBackToInfo(t *testing.T) {
	log, err := New("chatty", "production")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be enabled")
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled")
	}
}

func TestNew_Debug(t *testing.T) {
	log, err := New(" DEBUG ", "production")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be enabled")
	}
}

func TestNew_DevelopmentKeepsLevel(t *testing.T) {
	log, err := New("warn", "Development")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn")
	}
}
