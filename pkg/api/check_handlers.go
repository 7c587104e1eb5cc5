package api

import (
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// check answers whether a subject holds the listed permissions. Mode "all"
// (the default) requires every permission, "any" at least one, and "role"
// every permission through the subject's roles alone.
func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Subject.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	checker := s.manager.Checker()
	refs := rbac.Names(req.Permissions...)

	var allowed bool
	var err error
	switch req.Mode {
	case "", CheckModeAll:
		allowed, err = checker.HasAllPermissions(ctx, req.Subject, refs)
	case CheckModeAny:
		allowed, err = checker.HasAnyPermission(ctx, req.Subject, refs)
	case CheckModeRole:
		allowed = true
		for _, ref := range refs {
			if allowed, err = checker.HasPermissionViaRole(ctx, req.Subject, ref); err != nil || !allowed {
				break
			}
		}
	default:
		httputil.WriteBadRequest(w, "mode must be 'all', 'any' or 'role'")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if logErr := audit.LogDecision(ctx, req.Subject.String(), req.Permissions, allowed); logErr != nil {
		observability.FromContext(ctx).WithError(logErr).Warn("failed to write audit event")
	}
	httputil.WriteSuccess(w, CheckResponse{Allowed: allowed})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.GetStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
