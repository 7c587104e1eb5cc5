package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levels = [...]struct {
	name string
	slog slog.Level
}{
	DebugLevel: {"DEBUG", slog.LevelDebug},
	InfoLevel:  {"INFO", slog.LevelInfo},
	WarnLevel:  {"WARN", slog.LevelWarn},
	ErrorLevel: {"ERROR", slog.LevelError},
}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levels[InfoLevel].name
	}
	return levels[l].name
}

func (l LogLevel) slogLevel() slog.Level {
	if l < DebugLevel || l > ErrorLevel {
		return slog.LevelInfo
	}
	return levels[l].slog
}

// ParseLogLevel parses a level name, defaulting to InfoLevel
func ParseLogLevel(level string) LogLevel {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARNING" {
		return WarnLevel
	}
	for l, def := range levels {
		if def.name == level {
			return LogLevel(l)
		}
	}
	return InfoLevel
}

// Logger writes JSON lines through slog. Loggers are immutable; the With
// methods return a child carrying the extra fields.
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a JSON logger writing to output, or stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(handler), level: level}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

// Level returns the minimum level the logger emits
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithSubject tags entries with the subject they concern, rendered "type:id"
func (l *Logger) WithSubject(subject fmt.Stringer) *Logger {
	if subject == nil {
		return l
	}
	return l.with("subject", subject.String())
}

// WithDecision tags entries with an authorization operation and its outcome
func (l *Logger) WithDecision(operation string, allowed bool) *Logger {
	return l.with("operation", operation, "allowed", allowed)
}

func (l *Logger) log(level LogLevel, message string) {
	l.logger.Log(context.Background(), level.slogLevel(), message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) { l.log(DebugLevel, message) }

// Info logs an info message
func (l *Logger) Info(message string) { l.log(InfoLevel, message) }

// Warn logs a warning message
func (l *Logger) Warn(message string) { l.log(WarnLevel, message) }

// Error logs an error message
func (l *Logger) Error(message string) { l.log(ErrorLevel, message) }

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
)

var fallbackLogger = NewLogger(InfoLevel, os.Stdout)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithSubject records the calling subject in the context. It shares
// contextkeys.SubjectKey with the subject middleware, so an rbac.Subject
// stored by either is seen by both.
func WithSubject(ctx context.Context, subject fmt.Stringer) context.Context {
	return contextkeys.WithSubject(ctx, subject)
}

// GetSubject returns the calling subject as "type:id", or "" for anonymous calls
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(contextkeys.SubjectKey).(fmt.Stringer); ok {
		return subject.String()
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context, falling back to an info-level stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok {
		return logger
	}
	return fallbackLogger
}

// FromContext returns the context logger tagged with the request ID and the
// calling subject when present
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if subject, ok := ctx.Value(contextkeys.SubjectKey).(fmt.Stringer); ok {
		logger = logger.WithSubject(subject)
	}
	return logger
}
