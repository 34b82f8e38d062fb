package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("poll complete", slog.String(TriggerIDKey, "t-1"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "poll complete" {
		t.Errorf("msg = %v, want %q", entry["msg"], "poll complete")
	}
	if entry[TriggerIDKey] != "t-1" {
		t.Errorf("trigger_id = %v, want t-1", entry[TriggerIDKey])
	}
}

func TestWithTriggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	WithTriggerContext(logger, "t-42", "notion").Info("firing")

	out := buf.String()
	if !strings.Contains(out, "trigger_id=t-42") || !strings.Contains(out, "piece=notion") {
		t.Errorf("missing context fields in output: %s", out)
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"secret_abcdef1234", "...1234"},
		{"ab", "[REDACTED]"},
		{"", "[REDACTED]"},
	}

	for _, tt := range tests {
		if got := SanitizeAPIKey(tt.input); got != tt.want {
			t.Errorf("SanitizeAPIKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
