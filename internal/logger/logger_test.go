package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rama-kairi/go-feedback/internal/config"
)

func newFileLogger(t *testing.T, level, format string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	cfg := &config.LoggingConfig{Level: level, Format: format, Output: path}
	l, err := NewLogger(cfg, "test")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLogLevelFiltering(t *testing.T) {
	l, path := newFileLogger(t, "warn", "json")

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message", nil)

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 entries at warn level, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "warn message") || !strings.Contains(lines[1], "error message") {
		t.Errorf("Unexpected entries: %v", lines)
	}
}

func TestJSONFormat(t *testing.T) {
	l, path := newFileLogger(t, "info", "json")

	l.Info("structured entry", map[string]interface{}{
		"session_id": "abc-123",
		"custom":     "value",
	})

	lines := readLines(t, path)
	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "structured entry" {
		t.Errorf("Entry fields wrong: %+v", entry)
	}
	if entry.SessionID != "abc-123" {
		t.Errorf("session_id not promoted to its field: %+v", entry)
	}
	if entry.Fields["custom"] != "value" {
		t.Error("Custom field missing")
	}
	if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
		t.Errorf("Timestamp not RFC3339Nano: %v", err)
	}
}

func TestTextFormat(t *testing.T) {
	l, path := newFileLogger(t, "info", "text")

	l.WithSession("12345678-abcd").Info("text entry")

	lines := readLines(t, path)
	if !strings.Contains(lines[0], "[session:12345678]") {
		t.Errorf("Expected truncated session tag, got %s", lines[0])
	}
	if !strings.Contains(lines[0], "text entry") {
		t.Errorf("Message missing: %s", lines[0])
	}
}

func TestWithFields(t *testing.T) {
	l, path := newFileLogger(t, "info", "json")

	scoped := l.WithFields(map[string]interface{}{"trigger": "auto"})
	scoped.Info("scoped entry")
	l.Info("plain entry")

	lines := readLines(t, path)
	var scopedEntry, plainEntry LogEntry
	json.Unmarshal([]byte(lines[0]), &scopedEntry)
	json.Unmarshal([]byte(lines[1]), &plainEntry)

	if scopedEntry.Trigger != "auto" {
		t.Error("Scoped logger lost its base field")
	}
	if plainEntry.Trigger != "" {
		t.Error("Base field leaked to the parent logger")
	}
}

func TestLogCleanupEvent(t *testing.T) {
	l, path := newFileLogger(t, "info", "json")

	l.LogCleanupEvent("expired", 3, 150*time.Millisecond, nil)

	lines := readLines(t, path)
	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Trigger != "expired" {
		t.Errorf("Expected trigger field, got %+v", entry)
	}
	if entry.Fields["sessions_cleaned"] != float64(3) {
		t.Errorf("Expected sessions_cleaned 3, got %v", entry.Fields["sessions_cleaned"])
	}
}

func TestSetLevel(t *testing.T) {
	l, path := newFileLogger(t, "error", "json")

	l.Info("dropped")
	l.SetLevel("info")
	l.Info("kept")

	lines := readLines(t, path)
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Errorf("SetLevel not applied: %v", lines)
	}
}
