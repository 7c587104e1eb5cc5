package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return NoopLogger{}
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (NoopLogger) Close() error {
	return nil
}

// NewEvent creates an event with id, timestamp and request context populated
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Actor:     observability.GetSubject(ctx),
		RequestID: observability.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// LogSuccess records a successful change to a resource
func LogSuccess(ctx context.Context, eventType EventType, resourceType ResourceType, resourceName string, changes *ChangeDetails) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceName = resourceName
	event.Changes = changes
	return FromContext(ctx).Log(ctx, event)
}

// LogFailure records a failed attempt to change a resource
func LogFailure(ctx context.Context, eventType EventType, resourceType ResourceType, resourceName string, err error) error {
	event := NewEvent(ctx, eventType, EventStatusFailure)
	event.ResourceType = resourceType
	event.ResourceName = resourceName
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogDecision records the outcome of a permission check for target
func LogDecision(ctx context.Context, target string, permissions []string, allowed bool) error {
	eventType, status := EventTypeAuthzPermissionCheck, EventStatusSuccess
	if !allowed {
		eventType, status = EventTypeAuthzAccessDenied, EventStatusDenied
	}
	event := NewEvent(ctx, eventType, status)
	event.ResourceType = ResourceTypeSubject
	event.ResourceName = target
	event.Metadata["permissions"] = permissions
	return FromContext(ctx).Log(ctx, event)
}
