package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	l := New(slog.LevelWarn, true)
	ctx := context.Background()
	if !l.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn level should be enabled")
	}
	if l.Enabled(ctx, slog.LevelInfo) {
		t.Error("info level should be disabled at warn")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	l.WithComponent("cache").Info("cleaned up")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["component"] != "cache" {
		t.Errorf("component = %v, want cache", entry["component"])
	}
}
