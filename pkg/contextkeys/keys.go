// Package contextkeys provides centralized context key definitions
//
// All request-scoped values shared between packages are keyed here so that
// middleware and handlers agree on names and value types.
//
//	import "github.com/platinummonkey/gatekeeper/pkg/contextkeys"
//	ctx = contextkeys.WithSubject(ctx, subject)
//	subject, ok := ctx.Value(contextkeys.SubjectKey).(rbac.Subject)
//
// Request ids and loggers live in pkg/observability.
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SubjectKey contains the rbac.Subject making the request
	// Set by: middleware.SubjectFromHeaders (pkg/middleware/subject.go)
	// Required by: middleware.RequirePermission and friends, audit events
	// Type: rbac.Subject
	SubjectKey Key = "rbac_subject"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: api.Server when audit logging is enabled
	// Used by: Handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.LoggingMiddleware
	// Used by: Duration calculation for audit events
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// WithSubject adds the requesting subject to the context
func WithSubject(ctx context.Context, subject interface{}) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestStartTime retrieves the request start time, or the zero time
func GetRequestStartTime(ctx context.Context) time.Time {
	if start, ok := ctx.Value(RequestStartTimeKey).(time.Time); ok {
		return start
	}
	return time.Time{}
}
