package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Development(t *testing.T) {
	log, err := New(true, "")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development logger should log debug")
	}

	// Should not panic
	log.Info("test message")
}

func TestNew_ProductionLevel(t *testing.T) {
	log, err := New(false, "warn")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be filtered at warn level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should pass at warn level")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(false, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestMust(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Must should panic on invalid level")
		}
	}()

	// Should not panic
	if log := Must(true, "debug"); log == nil {
		t.Fatal("expected non-nil logger")
	}
	Must(false, "loud")
}
