package memorymodel

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/timefmt-go"
)

// LogLevel is the severity of a log line. Higher levels are more verbose.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name case-insensitively. Unknown names map
// to warn.
func ParseLogLevel(s string) LogLevel {
	name := strings.ToUpper(s)
	if name == "WARNING" {
		return LevelWarn
	}
	if i := slices.Index(levelNames[:], name); i >= 0 {
		return LogLevel(i)
	}
	return LevelWarn
}

// Logger is what sessions and snapshots log through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// Enabled reports whether lines at level are written. Callers check it
	// before rendering expensive arguments.
	Enabled(level LogLevel) bool

	// With returns a child logger that appends fields to every line.
	With(fields map[string]any) Logger
}

const timestampFormat = "%Y-%m-%dT%H:%M:%SZ"

// textFormatter renders one line as
//
//	[LEVEL] 2006-01-02T15:04:05Z message key=value ...
type textFormatter struct {
	includeTimestamp bool
}

func newTextFormatter() *textFormatter {
	return &textFormatter{includeTimestamp: true}
}

// format renders a line. suffix holds the pre-rendered fields, see
// renderFields.
func (f *textFormatter) format(ts time.Time, level LogLevel, msg, suffix string) []byte {
	var b strings.Builder
	b.Grow(len(msg) + len(suffix) + 40)
	b.WriteString("[" + level.String() + "] ")
	if f.includeTimestamp {
		b.WriteString(timefmt.Format(ts.UTC(), timestampFormat))
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	b.WriteString(suffix)
	b.WriteByte('\n')
	return []byte(b.String())
}

// renderFields renders fields as " k=v" pairs in key order.
func renderFields(fields map[string]any) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		b.WriteString(" " + k + "=" + fieldValue(fields[k]))
	}
	return b.String()
}

// fieldValue quotes strings containing spaces or control characters.
func fieldValue(v any) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsFunc(t, func(r rune) bool { return r <= ' ' }) {
			return fmt.Sprintf("%q", t)
		}
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// textLogger writes formatted lines to out. Children made by With share the
// writer and its lock.
type textLogger struct {
	out       io.Writer
	mu        *sync.Mutex
	level     LogLevel
	formatter *textFormatter

	fields map[string]any
	suffix string
}

// NewLogger creates a text logger writing lines at or below level to w,
// or to os.Stderr when w is nil.
func NewLogger(level LogLevel, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &textLogger{
		out:       w,
		mu:        &sync.Mutex{},
		level:     level,
		formatter: newTextFormatter(),
	}
}

func (l *textLogger) Enabled(level LogLevel) bool { return level <= l.level }

func (l *textLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	child := *l
	child.fields = maps.Clone(l.fields)
	if child.fields == nil {
		child.fields = make(map[string]any, len(fields))
	}
	maps.Copy(child.fields, fields)
	child.suffix = renderFields(child.fields)
	return &child
}

func (l *textLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args) }
func (l *textLogger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args) }
func (l *textLogger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args) }
func (l *textLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args) }

func (l *textLogger) logf(level LogLevel, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	line := l.formatter.format(time.Now(), level, fmt.Sprintf(format, args...), l.suffix)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(line)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)      {}
func (noopLogger) Infof(string, ...any)       {}
func (noopLogger) Warnf(string, ...any)       {}
func (noopLogger) Errorf(string, ...any)      {}
func (noopLogger) Enabled(LogLevel) bool      { return false }
func (noopLogger) With(map[string]any) Logger { return noopLogger{} }

// NoopLogger returns a logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

// truncateList joins items with "," and appends +N for the ones cut.
func truncateList(items []string, limit int) string {
	if limit <= 0 || len(items) <= limit {
		return strings.Join(items, ",")
	}
	return strings.Join(items[:limit], ",") + fmt.Sprintf(",+%d", len(items)-limit)
}

// entryDelta renders "before -> after", or "" when nothing changed.
func entryDelta(before, after Entry, limit int) string {
	if before.Equal(after) {
		return ""
	}
	return before.summary(limit) + " -> " + after.summary(limit)
}

func indexList(idxs []MemoryIndex, limit int) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = idx.String()
	}
	return "[" + truncateList(parts, limit) + "]"
}
