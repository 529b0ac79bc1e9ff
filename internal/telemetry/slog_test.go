package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogHandler_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "info"))
	logger.Info("test message", "key", "value")

	line := strings.TrimSpace(buf.String())
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("json handler output is not valid JSON: %v\noutput: %s", err, line)
	}
	if obj["msg"] != "test message" || obj["key"] != "value" {
		t.Errorf("unexpected record %v", obj)
	}
}

func TestNewLogHandler_TextFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "anything-else", "info"))
	logger.Info("text test", "env", "development")

	line := buf.String()
	if !strings.Contains(line, "text test") || !strings.Contains(line, "env=development") {
		t.Errorf("unexpected text output: %q", line)
	}
}

func TestNewLogHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "warn"))
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be suppressed") {
		t.Error("info record appeared despite warn filter")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn record was unexpectedly suppressed")
	}
}

func TestNewLogHandler_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json", "debug"))
	logger.Debug("with source")

	line := strings.TrimSpace(buf.String())
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := obj["source"]; !ok {
		t.Error("debug level should record source positions")
	}
}

func TestSetupLogger_DoesNotPanic(t *testing.T) {
	for _, format := range []string{"json", "text", "", "unknown"} {
		for _, level := range []string{"debug", "info", "warn", "error", "", "unknown"} {
			SetupLogger(format, level)
		}
	}
	SetupLogger("text", "error")
}
