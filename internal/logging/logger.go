package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface so they can be exercised in tests with
// a recording or no-op logger without touching the process-wide sink.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string onto a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warning", "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type sink struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
}

var (
	sinkInstance *sink
	sinkOnce     sync.Once
)

func defaultSink() *sink {
	sinkOnce.Do(func() {
		sinkInstance = &sink{out: os.Stderr, level: DEBUG}
	})
	return sinkInstance
}

// Configure points the process-wide sink at a log file and sets the minimum
// level. Called once at daemon startup; safe to skip in tests.
func Configure(dir string, level Level) error {
	s := defaultSink()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, "mira.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
	s.out = io.MultiWriter(os.Stderr, file)
	return nil
}

// Close releases the log file, if one was configured.
func Close() error {
	s := defaultSink()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.out = os.Stderr
	return err
}

func (s *sink) log(level Level, component, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	_, file, line, ok := runtime.Caller(3)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	if component == "" {
		component = "MIRA"
	}
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line, message)
	_, _ = io.WriteString(s.out, sanitizeLogLine(logLine))
}

// componentLogger scopes the shared sink to one named component.
type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) Debug(format string, args ...any) {
	defaultSink().log(DEBUG, l.component, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	defaultSink().log(INFO, l.component, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	defaultSink().log(WARN, l.component, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	defaultSink().log(ERROR, l.component, format, args...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

const redactedPlaceholder = "[REDACTED]"

var (
	bearerTokenPattern       = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	sensitiveKeyValuePattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|access[_-]?token|refresh[_-]?token|token|secret|password|credential)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`,
	)
)

// sanitizeLogLine scrubs credential-shaped substrings before they reach disk.
func sanitizeLogLine(line string) string {
	sanitized := sensitiveKeyValuePattern.ReplaceAllString(line, "${1}"+redactedPlaceholder+"${3}")
	sanitized = bearerTokenPattern.ReplaceAllString(sanitized, "${1}"+redactedPlaceholder)
	return sanitized
}
