package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// subjectFromPath builds the subject named by the {type} and {id} path
// variables
func subjectFromPath(w http.ResponseWriter, r *http.Request) (rbac.Subject, bool) {
	vars := mux.Vars(r)
	subject := rbac.Subject{Type: vars["type"], ID: vars["id"]}
	if err := subject.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return rbac.Subject{}, false
	}
	return subject, true
}

func (s *Server) getSubjectRoles(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}

	roles, err := s.manager.Roles().GetSubjectRoles(r.Context(), subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponses(roles))
}

// syncSubjectRoles replaces the subject's roles. Unknown role names are
// skipped.
func (s *Server) syncSubjectRoles(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	var req NamesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	err := s.manager.Roles().SyncRoles(ctx, subject, req.Names)
	s.record(r, audit.EventTypeGrantRoleSync, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{After: map[string]interface{}{"roles": req.Names}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	names, err := s.manager.Roles().GetRoles(ctx, subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, NamesRequest{Names: names})
}

func (s *Server) hasSubjectRole(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}

	has, err := s.manager.Roles().HasRole(r.Context(), subject, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, HasRoleResponse{HasRole: has})
}

func (s *Server) assignSubjectRole(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}

	err := s.manager.Roles().AssignRoleTo(r.Context(), subject, role)
	s.record(r, audit.EventTypeGrantRoleAssign, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{After: map[string]interface{}{"role": role}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeSubjectRole(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}

	err := s.manager.Roles().RemoveRoleFrom(r.Context(), subject, role)
	s.record(r, audit.EventTypeGrantRoleRemove, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{Before: map[string]interface{}{"role": role}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) getSubjectPermissions(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}

	perms, err := s.manager.Permissions().GetDirectPermissions(r.Context(), subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// syncSubjectPermissions replaces the subject's direct permissions. Every
// name must exist.
func (s *Server) syncSubjectPermissions(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	var req NamesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	err := s.manager.Permissions().SyncPermissionsTo(ctx, subject, rbac.Names(req.Names...))
	s.record(r, audit.EventTypeGrantPermissionSync, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{After: map[string]interface{}{"permissions": req.Names}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	perms, err := s.manager.Permissions().GetDirectPermissions(ctx, subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, NamesRequest{Names: permissionNames(perms)})
}

func (s *Server) assignSubjectPermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	permission, ok := httputil.ParsePathStringOrError(w, r, "permission")
	if !ok {
		return
	}

	err := s.manager.Permissions().AssignPermissionTo(r.Context(), subject, rbac.PermissionName(permission))
	s.record(r, audit.EventTypeGrantPermissionAssign, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{After: map[string]interface{}{"permission": permission}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) revokeSubjectPermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}
	permission, ok := httputil.ParsePathStringOrError(w, r, "permission")
	if !ok {
		return
	}

	err := s.manager.Permissions().RevokePermissionFrom(r.Context(), subject, rbac.PermissionName(permission))
	s.record(r, audit.EventTypeGrantPermissionRevoke, audit.ResourceTypeSubject, subject.String(),
		&audit.ChangeDetails{Before: map[string]interface{}{"permission": permission}}, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getEffectivePermissions lists every permission the subject holds directly
// or through a role
func (s *Server) getEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}

	perms, err := s.manager.Checker().EffectivePermissions(r.Context(), subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}
