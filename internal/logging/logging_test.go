package logging

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facetone.log")

	logger, err := NewLogger(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	WithOperation(logger, "analyze_colors", "req-1").Debug("analysis finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := strings.TrimSpace(string(data))

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, line)
	}
	if entry["operation"] != "analyze_colors" || entry["request_id"] != "req-1" {
		t.Fatalf("missing operation fields: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("expected timestamp key, got %v", entry)
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewOperationError("save_log", "req-9", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "save_log" {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if got := err.Error(); got != "save_log (request_id=req-9): connection reset" {
		t.Fatalf("unexpected message %q", got)
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
}

func TestNewLoggerCustomOutput(t *testing.T) {
	var buf strings.Builder
	logger, err := NewLogger(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestErrorFieldsUsesInnermostOperation(t *testing.T) {
	inner := NewOperationError("repository.save_log", "req-1", errors.New("timeout"))
	outer := NewOperationError("usecase.save_log", "req-1", inner)

	fields := ErrorFields(outer)
	if len(fields) != 3 {
		t.Fatalf("expected error, operation and request id fields, got %d", len(fields))
	}
	if fields[1].Key != "failed_operation" || fields[1].String != "repository.save_log" {
		t.Fatalf("unexpected operation field %+v", fields[1])
	}
	if fields[2].String != "req-1" {
		t.Fatalf("unexpected request id field %+v", fields[2])
	}

	if got := ErrorFields(errors.New("plain")); len(got) != 1 {
		t.Fatalf("expected only the error field, got %d", len(got))
	}
}
