package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/substantiate/internal/model"
)

func TestLogger_FieldsReachCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromCore(core).Named("engine").With(String("claim_id", "c1"))

	logger.Warn("ai fallback failed", Err(errors.New("timeout")), Float64("rule_score", 0.25), Int("candidates", 2))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "engine" {
		t.Errorf("expected logger name engine, got %q", e.LoggerName)
	}
	fields := e.ContextMap()
	if fields["claim_id"] != "c1" {
		t.Errorf("expected claim_id c1, got %v", fields["claim_id"])
	}
	if fields["error"] != "timeout" {
		t.Errorf("expected error timeout, got %v", fields["error"])
	}
	if fields["rule_score"] != 0.25 {
		t.Errorf("expected rule_score 0.25, got %v", fields["rule_score"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewLogger(model.LogConfig{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("NewLogger(%s) failed: %v", format, err)
		}
		if l == nil {
			t.Fatalf("NewLogger(%s) returned nil", format)
		}
	}
}

func TestDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	SetDefault(nil)
	if Default() != original {
		t.Error("SetDefault(nil) must not replace the logger")
	}

	nop := NewNopLogger()
	SetDefault(nop)
	if OrDefault(nil) != nop {
		t.Error("OrDefault(nil) should return the default logger")
	}
}

func TestErr_Nil(t *testing.T) {
	if f := Err(nil); f.Value != "<nil>" {
		t.Errorf("expected <nil>, got %v", f.Value)
	}
}
