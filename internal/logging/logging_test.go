package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", raw, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupWithWritersFansOut(t *testing.T) {
	t.Parallel()

	var stderr, file bytes.Buffer
	logger := SetupWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Info("exchange_complete", "channel_id", "C1")

	if !strings.Contains(stderr.String(), "exchange_complete") {
		t.Fatalf("stderr output missing record: %q", stderr.String())
	}
	var record map[string]any
	if err := json.Unmarshal(file.Bytes(), &record); err != nil {
		t.Fatalf("file output is not JSON: %v", err)
	}
	if record["msg"] != "exchange_complete" || record["channel_id"] != "C1" {
		t.Fatalf("unexpected JSON record: %v", record)
	}
}

func TestSetupWithWritersRespectsLevel(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	logger := SetupWithWriters(&stderr, nil, slog.LevelWarn)
	logger.Info("below_threshold")
	logger.Warn("at_threshold")

	out := stderr.String()
	if strings.Contains(out, "below_threshold") {
		t.Fatalf("info record logged at warn level")
	}
	if !strings.Contains(out, "at_threshold") {
		t.Fatalf("warn record missing")
	}
}
