package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")

		logger, err := NewLogger(dir, LevelDebug, FormatJSON)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, LogFileName))
		if err != nil {
			t.Fatalf("log file not written: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"hello"`) {
			t.Errorf("unexpected log content: %s", data)
		}
	})

	t.Run("writes to stderr when directory is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, FormatText)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.file != nil {
			t.Error("expected no file when directory is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stream logger: %v", err)
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn, FormatJSON)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	for _, hidden := range []string{"debug message", "info message"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q should have been filtered", hidden)
		}
	}
	for _, shown := range []string{"warn message", "error message"} {
		if !strings.Contains(out, shown) {
			t.Errorf("%q missing from output", shown)
		}
	}
}

func TestChildLoggersCarryAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo, FormatJSON)

	logger.WithInstance("inst-1").WithTask("task-1").With("attempt", 2).Info("assigned")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["instance_id"] != "inst-1" || entry["task_id"] != "task-1" {
		t.Errorf("missing ids: %v", entry)
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("missing attempt: %v", entry)
	}

	// The parent is unchanged.
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "inst-1") {
		t.Errorf("parent logger picked up child attributes: %s", buf.String())
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "bogus", "bogus").Info("fallback", "k", "v")

	if !strings.Contains(buf.String(), "msg=fallback") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("expected text output at info level, got %q", buf.String())
	}
}

func TestValidLevel(t *testing.T) {
	for _, l := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if !ValidLevel(l) {
			t.Errorf("%q should be valid", l)
		}
	}
	if ValidLevel("trace") {
		t.Error("trace should be invalid")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
