package memorymodel

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"
)

// TestLoggerLevels tests filtering by level
func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, &buf)
	logger.Debugf("hidden %d", 1)
	logger.Infof("shown %d", 2)
	logger.Errorf("failed")

	logs := buf.String()
	if strings.Contains(logs, "hidden") {
		t.Errorf("Expected debug output to be filtered:\n%s", logs)
	}
	if !strings.Contains(logs, "[INFO]") || !strings.Contains(logs, "shown 2") {
		t.Errorf("Expected info output:\n%s", logs)
	}
	if !strings.Contains(logs, "[ERROR]") {
		t.Errorf("Expected error output:\n%s", logs)
	}
}

// TestLoggerWith tests that child loggers carry sorted fields
func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, &buf).
		With(map[string]any{"snapshot": 4}).
		With(map[string]any{"op": "merge", "path": "$a b"})
	logger.Debugf("done")

	line := strings.TrimSpace(buf.String())
	want := regexp.MustCompile(`^\[DEBUG\] \d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z done op=merge path="\$a b" snapshot=4$`)
	if !want.MatchString(line) {
		t.Errorf("Unexpected log line: %s", line)
	}
}

// TestTextFormatterTimestamp tests the strftime rendering of timestamps
func TestTextFormatterTimestamp(t *testing.T) {
	f := newTextFormatter()
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	got := string(f.format(ts, LevelWarn, "msg", ""))
	if got != "[WARN] 2024-03-09T07:05:01Z msg\n" {
		t.Errorf("format = %q", got)
	}
}

// TestParseLogLevel tests level names
func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"error":   LevelError,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"Info":    LevelInfo,
		"debug":   LevelDebug,
		"verbose": LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

// TestTruncateList tests summaries of long value lists
func TestTruncateList(t *testing.T) {
	if got := truncateList([]string{"a", "b", "c"}, 2); got != "a,b,+1" {
		t.Errorf("truncateList = %q", got)
	}
	if got := truncateList([]string{"a", "b"}, 0); got != "a,b" {
		t.Errorf("truncateList = %q", got)
	}
	if got := entryDelta(NewEntry(Int(1)), NewEntry(Int(1)), 4); got != "" {
		t.Errorf("Expected no delta for equal entries, got %q", got)
	}
}

// TestLoggerEnabled tests level checks, which guard expensive debug output
func TestLoggerEnabled(t *testing.T) {
	logger := NewLogger(LevelWarn, &bytes.Buffer{})
	if !logger.Enabled(LevelError) || !logger.Enabled(LevelWarn) {
		t.Error("Expected error and warn to be enabled at warn")
	}
	if logger.Enabled(LevelDebug) {
		t.Error("Expected debug to be disabled at warn")
	}
	if child := logger.With(map[string]any{"snapshot": 1}); child.Enabled(LevelInfo) {
		t.Error("Expected children to keep the parent's level")
	}

	noop := NoopLogger().With(map[string]any{"snapshot": 1})
	for _, level := range []LogLevel{LevelError, LevelDebug} {
		if noop.Enabled(level) {
			t.Errorf("Expected the noop logger to disable %s", level)
		}
	}
}

// TestLoggerWithIsolation tests that a child's fields do not leak into its
// parent or siblings
func TestLoggerWithIsolation(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, &buf).With(map[string]any{"snapshot": 1})
	parent.With(map[string]any{"op": "merge"})
	parent.With(map[string]any{"snapshot": 2}).Infof("child")
	parent.Infof("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %q", lines)
	}
	if !strings.HasSuffix(lines[0], "child snapshot=2") {
		t.Errorf("Unexpected child line: %s", lines[0])
	}
	if !strings.HasSuffix(lines[1], "parent snapshot=1") {
		t.Errorf("Unexpected parent line: %s", lines[1])
	}
}

// TestLogLevelString tests level names, including out of range levels
func TestLogLevelString(t *testing.T) {
	if LevelDebug.String() != "DEBUG" || LogLevel(9).String() != "UNKNOWN" {
		t.Errorf("Unexpected level names %s, %s", LevelDebug, LogLevel(9))
	}
}
