package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Fatalf("expected debug/info suppressed at warn level, got %q", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Fatalf("expected warn line in output, got %q", out)
	}
}

func TestLoggerJSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).WithComponent("cache")

	logger.Info("session replaced", "reason", "probe failure")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["component"] != "cache" {
		t.Fatalf("expected component=cache, got %v", record["component"])
	}
	if record["reason"] != "probe failure" {
		t.Fatalf("expected reason field, got %v", record["reason"])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("should not panic")
	OrNop(logger).Warn("still fine")
}
