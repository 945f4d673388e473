// Package logger provides the small structured logger used across purge.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// sink is the writer shared by a logger and everything derived from it.
type sink struct {
	mu    sync.Mutex
	w     io.Writer
	level atomic.Int32
}

func newSink(level Level, w io.Writer) *sink {
	if w == nil {
		w = os.Stderr
	}
	s := &sink{w: w}
	s.level.Store(int32(level))
	return s
}

func (s *sink) enabled(l Level) bool { return l >= Level(s.level.Load()) }

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(line)
}

func merge(base, extra []Field) []Field {
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	sink   *sink
	fields []Field
}

// logEntry represents a single log entry.
type logEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// New creates a new JSONLogger. A nil output means stderr.
func New(level Level, output io.Writer) *JSONLogger {
	return &JSONLogger{sink: newSink(level, output)}
}

// NewDefault creates a logger with info level writing to stderr.
func NewDefault() *JSONLogger {
	return New(LevelInfo, os.Stderr)
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// WithFields returns a logger that adds fields to every entry.
// The child shares the parent's output and level.
func (l *JSONLogger) WithFields(fields ...Field) Logger {
	return &JSONLogger{sink: l.sink, fields: merge(l.fields, fields)}
}

// SetLevel changes the level for this logger and every logger derived from it.
func (l *JSONLogger) SetLevel(level Level) {
	l.sink.level.Store(int32(level))
}

func (l *JSONLogger) log(level Level, msg string, fields []Field) {
	if !l.sink.enabled(level) {
		return
	}

	entry := logEntry{
		Time:    time.Now().UTC().Format(time.RFC3339),
		Level:   level.String(),
		Message: msg,
	}
	if all := merge(l.fields, fields); len(all) > 0 {
		entry.Fields = make(map[string]any, len(all))
		for _, f := range all {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.sink.write([]byte(fmt.Sprintf("%s [%s] %s\n", entry.Time, entry.Level, msg)))
		return
	}
	l.sink.write(append(data, '\n'))
}

// TextLogger writes "time LEVEL msg key=value ..." lines for humans.
type TextLogger struct {
	sink   *sink
	fields []Field
}

// NewText creates a TextLogger. A nil output means stderr.
func NewText(level Level, output io.Writer) *TextLogger {
	return &TextLogger{sink: newSink(level, output)}
}

func (l *TextLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *TextLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *TextLogger) WithFields(fields ...Field) Logger {
	return &TextLogger{sink: l.sink, fields: merge(l.fields, fields)}
}

func (l *TextLogger) SetLevel(level Level) {
	l.sink.level.Store(int32(level))
}

func (l *TextLogger) log(level Level, msg string, fields []Field) {
	if !l.sink.enabled(level) {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().UTC().Format(time.RFC3339))
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(level.String())))
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for _, f := range merge(l.fields, fields) {
		sb.WriteByte(' ')
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(textValue(f.Value))
	}
	sb.WriteByte('\n')
	l.sink.write([]byte(sb.String()))
}

func textValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case error:
		s = x.Error()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// NewWithFormat returns a JSON or text logger.
func NewWithFormat(level Level, format string, output io.Writer) (Logger, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return New(level, output), nil
	case "text":
		return NewText(level, output), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds a logger from configuration strings. output is "stderr"
// (or empty), "stdout", or a file path opened for appending. The returned
// closer releases the file, if any.
func Open(level, format, output string) (Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if level != "" && err != nil {
		return nil, nil, err
	}

	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(output), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	log, err := NewWithFormat(lvl, format, w)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return log, closer, nil
}

// NopLogger is a logger that discards all output.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) WithFields(fields ...Field) Logger { return NopLogger{} }

// NewNop creates a no-op logger.
func NewNop() Logger {
	return NopLogger{}
}
