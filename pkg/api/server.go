package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/swagger"
)

const maxRequestBytes = 1 << 20

// Server represents our API server
type Server struct {
	manager         *rbac.Manager
	router          *mux.Router
	audit           audit.Logger
	logger          *observability.Logger
	adminPermission string
}

// Option configures a Server
type Option func(*Server)

// WithAuditLogger records mutations and check decisions to logger
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Server) {
		s.audit = logger
	}
}

// WithLogger sets the request logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAdminPermission requires callers of the administrative routes to hold
// the named permission. The check route stays open.
func WithAdminPermission(name string) Option {
	return func(s *Server) {
		s.adminPermission = name
	}
}

// NewServer creates a new API server
func NewServer(manager *rbac.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
		audit:   audit.NoopLogger{},
		logger:  observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// API documentation is always public
	swagger.NewSwaggerHandlers().RegisterRoutes(s.router)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Permission checks are open to any identified caller
	check := v1.PathPrefix("/check").Subrouter()
	check.Use(middleware.SubjectFromHeaders(true))
	check.HandleFunc("", s.check).Methods("POST")

	admin := v1.NewRoute().Subrouter()
	if s.adminPermission != "" {
		guard := middleware.NewPermissionMiddleware(s.manager.Checker(), s.manager.Roles())
		admin.Use(middleware.SubjectFromHeaders(false))
		admin.Use(guard.RequirePermission(s.adminPermission))
	} else {
		admin.Use(middleware.SubjectFromHeaders(true))
	}

	// Permission routes
	admin.HandleFunc("/permissions", s.listPermissions).Methods("GET")
	admin.HandleFunc("/permissions", s.createPermission).Methods("POST")
	admin.HandleFunc("/permissions/{name}", s.getPermission).Methods("GET")
	admin.HandleFunc("/permissions/{name}", s.updatePermission).Methods("PUT")
	admin.HandleFunc("/permissions/{name}", s.deletePermission).Methods("DELETE")

	// Role routes
	admin.HandleFunc("/roles", s.listRoles).Methods("GET")
	admin.HandleFunc("/roles", s.createRole).Methods("POST")
	admin.HandleFunc("/roles/{name}", s.getRole).Methods("GET")
	admin.HandleFunc("/roles/{name}", s.updateRole).Methods("PUT")
	admin.HandleFunc("/roles/{name}", s.deleteRole).Methods("DELETE")
	admin.HandleFunc("/roles/{name}/permissions", s.assignRolePermissions).Methods("POST")
	admin.HandleFunc("/roles/{name}/permissions", s.syncRolePermissions).Methods("PUT")
	admin.HandleFunc("/roles/{name}/permissions", s.revokeAllRolePermissions).Methods("DELETE")
	admin.HandleFunc("/roles/{name}/permissions/{permission}", s.revokeRolePermission).Methods("DELETE")

	// Subject grant routes
	admin.HandleFunc("/subjects/{type}/{id}/roles", s.getSubjectRoles).Methods("GET")
	admin.HandleFunc("/subjects/{type}/{id}/roles", s.syncSubjectRoles).Methods("PUT")
	admin.HandleFunc("/subjects/{type}/{id}/roles/{role}", s.hasSubjectRole).Methods("GET")
	admin.HandleFunc("/subjects/{type}/{id}/roles/{role}", s.assignSubjectRole).Methods("POST")
	admin.HandleFunc("/subjects/{type}/{id}/roles/{role}", s.removeSubjectRole).Methods("DELETE")
	admin.HandleFunc("/subjects/{type}/{id}/permissions", s.getSubjectPermissions).Methods("GET")
	admin.HandleFunc("/subjects/{type}/{id}/permissions", s.syncSubjectPermissions).Methods("PUT")
	admin.HandleFunc("/subjects/{type}/{id}/permissions/{permission}", s.assignSubjectPermission).Methods("POST")
	admin.HandleFunc("/subjects/{type}/{id}/permissions/{permission}", s.revokeSubjectPermission).Methods("DELETE")
	admin.HandleFunc("/subjects/{type}/{id}/effective-permissions", s.getEffectivePermissions).Methods("GET")

	admin.HandleFunc("/stats", s.getStats).Methods("GET")
}

// Router returns the route table without the request middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in request id, logging, panic recovery
// and body limits, with the audit logger in every request context.
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxRequestBytes),
		httputil.ContentTypeMiddleware,
		s.withAudit,
	)(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

func (s *Server) withAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithLogger(r.Context(), s.audit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// fail writes err as a response, logging server-side failures
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := httputil.StatusForError(err); status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).
			WithError(err).
			WithFields(map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": status,
			}).Error("request failed")
	}
	httputil.WriteRBACError(w, err)
}

// record writes an audit event for a mutation. Audit failures are logged and
// never fail the request.
func (s *Server) record(r *http.Request, eventType audit.EventType, resourceType audit.ResourceType, name string, changes *audit.ChangeDetails, err error) {
	ctx := r.Context()
	var logErr error
	if err != nil {
		logErr = audit.LogFailure(ctx, eventType, resourceType, name, err)
	} else {
		logErr = audit.LogSuccess(ctx, eventType, resourceType, name, changes)
	}
	if logErr != nil {
		observability.FromContext(ctx).WithError(logErr).Warn("failed to write audit event")
	}
}
