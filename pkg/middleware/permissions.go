package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// PermissionMiddleware guards handlers with permission and role checks for
// the subject placed in the context by SubjectMiddleware.
type PermissionMiddleware struct {
	checker *rbac.Checker
	roles   *rbac.RoleService
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(checker *rbac.Checker, roles *rbac.RoleService) *PermissionMiddleware {
	return &PermissionMiddleware{
		checker: checker,
		roles:   roles,
	}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(name string) func(http.Handler) http.Handler {
	return pm.guard(name, func(ctx context.Context, subject rbac.Subject) (bool, error) {
		return pm.checker.HasPermission(ctx, subject, rbac.PermissionName(name))
	})
}

// RequireAnyPermission creates middleware that requires any of the specified permissions
func (pm *PermissionMiddleware) RequireAnyPermission(names ...string) func(http.Handler) http.Handler {
	return pm.guard("any of "+strings.Join(names, ", "), func(ctx context.Context, subject rbac.Subject) (bool, error) {
		return pm.checker.HasAnyPermission(ctx, subject, rbac.Names(names...))
	})
}

// RequireAllPermissions creates middleware that requires all of the specified permissions
func (pm *PermissionMiddleware) RequireAllPermissions(names ...string) func(http.Handler) http.Handler {
	return pm.guard("all of "+strings.Join(names, ", "), func(ctx context.Context, subject rbac.Subject) (bool, error) {
		return pm.checker.HasAllPermissions(ctx, subject, rbac.Names(names...))
	})
}

// RequireRole creates middleware that requires a specific role
func (pm *PermissionMiddleware) RequireRole(roleName string) func(http.Handler) http.Handler {
	return pm.guard("role "+roleName, func(ctx context.Context, subject rbac.Subject) (bool, error) {
		return pm.roles.HasRole(ctx, subject, roleName)
	})
}

func (pm *PermissionMiddleware) guard(requirement string, decide func(context.Context, rbac.Subject) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := GetSubject(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := decide(r.Context(), subject)
			if err != nil {
				logger := observability.FromContext(r.Context()).
					WithError(err).
					WithField("requirement", requirement)
				switch {
				case errors.Is(err, rbac.ErrNotFound):
					// A guard naming a permission that does not exist is a deployment error
					logger.Error("authorization guard references unknown permission")
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				case errors.Is(err, rbac.ErrStoreUnavailable):
					logger.Warn("permission check failed")
					httputil.WriteServiceUnavailable(w, "permission check failed")
				default:
					logger.Error("permission check failed")
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
				}
				return
			}

			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
