package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "monitor.log")

	logger := NewLoggerWithConfig(LogConfig{
		Level:      "info",
		Console:    true,
		NoColor:    true,
		File:       true,
		FilePath:   logPath,
		MaxSize:    1,
		ConsoleOut: &buf,
	})

	LogAlert(WithSymbol(logger, "TESTCO"), "TESTCO", "UPPER", 110, 100)

	out := buf.String()
	if !strings.Contains(out, "Alert triggered") || !strings.Contains(out, "symbol=TESTCO") {
		t.Errorf("console output missing alert fields: %q", out)
	}
}

func TestLogAlertFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogAlert(logger, "INFY", "LOWER", 1400.5, 1450)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["event"] != "alert" || entry["kind"] != "LOWER" || entry["threshold"] != 1450.0 {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Error("logger from context did not write")
	}

	// A bare context yields a no-op logger rather than panicking.
	nopLogger := FromContext(context.Background())
	nopLogger.Info().Msg("dropped")
}
