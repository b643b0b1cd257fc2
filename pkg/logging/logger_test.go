package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		enable  slog.Level
		disable *slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, nil},
		{"warn level", "warn", slog.LevelWarn, ptr(slog.LevelInfo)},
		{"upper case error", "ERROR", slog.LevelError, ptr(slog.LevelWarn)},
		{"default info", "", slog.LevelInfo, ptr(slog.LevelDebug)},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if tt.disable != nil && logger.Enabled(ctx, *tt.disable) {
				t.Fatalf("expected level %s to be disabled", *tt.disable)
			}
		})
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).With("component", "booking")
	logger.Info("appointment created", "appointment_id", "abc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "booking" {
		t.Fatalf("expected component attribute, got %v", entry)
	}
	if entry["appointment_id"] != "abc" {
		t.Fatalf("expected appointment_id attribute, got %v", entry)
	}
}

func ptr(l slog.Level) *slog.Level { return &l }
