package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Headers carrying the caller's identity. They are set by a trusted proxy
// or service mesh in front of this server.
const (
	SubjectTypeHeader = "X-Subject-Type"
	SubjectIDHeader   = "X-Subject-Id"
)

// SubjectMiddleware reads the calling subject from request headers
type SubjectMiddleware struct {
	optional bool // If true, allow requests without a subject
}

// NewSubjectMiddleware creates a new subject middleware
func NewSubjectMiddleware(optional bool) *SubjectMiddleware {
	return &SubjectMiddleware{optional: optional}
}

// SubjectFromHeaders is shorthand for NewSubjectMiddleware(optional).Handler
func SubjectFromHeaders(optional bool) func(http.Handler) http.Handler {
	return NewSubjectMiddleware(optional).Handler
}

// Handler wraps an HTTP handler, placing the subject in the request context
func (m *SubjectMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectType := strings.TrimSpace(r.Header.Get(SubjectTypeHeader))
		subjectID := strings.TrimSpace(r.Header.Get(SubjectIDHeader))

		if subjectType == "" && subjectID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing subject headers")
			return
		}

		subject := rbac.Subject{Type: subjectType, ID: subjectID}
		if err := subject.Validate(); err != nil {
			httputil.WriteUnauthorized(w, "both "+SubjectTypeHeader+" and "+SubjectIDHeader+" are required")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithSubject(r.Context(), subject)))
	})
}

// SubjectFromContext returns the subject placed by SubjectMiddleware
func SubjectFromContext(ctx context.Context) (rbac.Subject, bool) {
	subject, ok := ctx.Value(contextkeys.SubjectKey).(rbac.Subject)
	return subject, ok
}

// GetSubject extracts the subject from the request
func GetSubject(r *http.Request) (rbac.Subject, bool) {
	return SubjectFromContext(r.Context())
}
