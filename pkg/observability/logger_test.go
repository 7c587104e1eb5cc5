package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithField("key", "value").Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value", entry["key"])
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithFields(map[string]interface{}{
		"role_name": "editor",
		"count":     3,
	}).Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "editor", entry["role_name"])
	assert.EqualValues(t, 3, entry["count"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.Same(t, logger, logger.WithError(nil))

	logger.WithError(errors.New("boom")).Error("failed")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "ERROR", entry["level"])
}

type subject struct{ kind, id string }

func (s subject) String() string { return s.kind + ":" + s.id }

func TestLogger_WithSubjectAndDecision(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	assert.Same(t, logger, logger.WithSubject(nil))

	logger.WithSubject(subject{"User", "42"}).WithDecision("has_permission", false).Debug("permission check evaluated")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "User:42", entry["subject"])
	assert.Equal(t, "has_permission", entry["operation"])
	assert.Equal(t, false, entry["allowed"])
	assert.Equal(t, "DEBUG", entry["level"])
}

func TestContextHelpers(t *testing.T) {
	t.Run("RequestID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", GetRequestID(ctx))
		assert.Empty(t, GetRequestID(context.Background()))
	})

	t.Run("Subject", func(t *testing.T) {
		ctx := WithSubject(context.Background(), subject{"User", "42"})
		assert.Equal(t, "User:42", GetSubject(ctx))
		assert.Equal(t, subject{"User", "42"}, ctx.Value(contextkeys.SubjectKey), "shared with the subject middleware")
		assert.Empty(t, GetSubject(context.Background()))
	})

	t.Run("Logger", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, GetLogger(ctx))
		assert.NotNil(t, GetLogger(context.Background()))
		assert.Same(t, GetLogger(context.Background()), GetLogger(context.TODO()))
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithSubject(ctx, subject{"User", "42"})

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "User:42", entry["subject"])
	})
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}

func TestLogLevel_OutOfRange(t *testing.T) {
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		" error ": ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.Equal(t, ErrorLevel, logger.Level())
	logger.WithField("k", "v").Error("discarded")
}
