package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.manager.Roles().ListAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponses(roles))
}

// createRole creates a role and, when permissions are listed, assigns them.
// Unknown permission names fail the request before the role is created.
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	roles := s.manager.Roles()
	if len(req.Permissions) > 0 {
		if _, err := s.manager.Permissions().ResolveAll(ctx, rbac.Names(req.Permissions...)); err != nil {
			s.record(r, audit.EventTypeAdminRoleCreate, audit.ResourceTypeRole, req.Name, nil, err)
			s.fail(w, r, err)
			return
		}
	}

	role, err := roles.Create(ctx, req.Name, req.Description)
	if err == nil && len(req.Permissions) > 0 {
		err = roles.AssignPermissionsByName(ctx, role, req.Permissions)
	}
	s.record(r, audit.EventTypeAdminRoleCreate, audit.ResourceTypeRole, req.Name, nil, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, newRoleResponse(role))
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	role, ok := s.roleFromPath(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// updateRole renames and/or redescribes a role. An empty name keeps the
// current one. The permission set is managed through the permissions routes.
func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	role, ok := s.roleFromPath(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Permissions) > 0 {
		httputil.WriteBadRequest(w, "use the role permissions routes to change permissions")
		return
	}
	if req.Name == "" {
		req.Name = role.Name
	}

	oldName := role.Name
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"name": role.Name, "description": role.Description},
		After:  map[string]interface{}{"name": req.Name, "description": req.Description},
	}
	updated, err := s.manager.Roles().Update(r.Context(), role, req.Name, req.Description)
	s.record(r, audit.EventTypeAdminRoleUpdate, audit.ResourceTypeRole, oldName, changes, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(updated))
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	role, ok := s.roleFromPath(w, r)
	if !ok {
		return
	}

	err := s.manager.Roles().Delete(r.Context(), role)
	s.record(r, audit.EventTypeAdminRoleDelete, audit.ResourceTypeRole, role.Name, nil, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// assignRolePermissions adds the named permissions. If any name is unknown
// the response lists every missing name and nothing is assigned.
func (s *Server) assignRolePermissions(w http.ResponseWriter, r *http.Request) {
	s.changeRolePermissions(w, r, true, func(ctx context.Context, role *rbac.Role, names []string) error {
		return s.manager.Roles().AssignPermissionsByName(ctx, role, names)
	})
}

// syncRolePermissions replaces the role's permission set
func (s *Server) syncRolePermissions(w http.ResponseWriter, r *http.Request) {
	s.changeRolePermissions(w, r, true, func(ctx context.Context, role *rbac.Role, names []string) error {
		return s.manager.Roles().SyncPermissions(ctx, role, rbac.Names(names...))
	})
}

func (s *Server) revokeAllRolePermissions(w http.ResponseWriter, r *http.Request) {
	s.changeRolePermissions(w, r, false, func(ctx context.Context, role *rbac.Role, _ []string) error {
		return s.manager.Roles().RevokeAllPermissions(ctx, role)
	})
}

func (s *Server) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	permission, ok := httputil.ParsePathStringOrError(w, r, "permission")
	if !ok {
		return
	}
	s.changeRolePermissions(w, r, false, func(ctx context.Context, role *rbac.Role, _ []string) error {
		return s.manager.Roles().RevokePermission(ctx, role, rbac.PermissionName(permission))
	})
}

func (s *Server) changeRolePermissions(w http.ResponseWriter, r *http.Request, withBody bool, change func(context.Context, *rbac.Role, []string) error) {
	role, ok := s.roleFromPath(w, r)
	if !ok {
		return
	}
	var req NamesRequest
	if withBody && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before := role.Permissions()
	err := change(r.Context(), role, req.Names)
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"permissions": namesOf(before)},
		After:  map[string]interface{}{"permissions": namesOf(role.Permissions())},
	}
	s.record(r, audit.EventTypeAdminRolePermissions, audit.ResourceTypeRole, role.Name, changes, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

func (s *Server) roleFromPath(w http.ResponseWriter, r *http.Request) (*rbac.Role, bool) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return nil, false
	}
	role, err := s.manager.Roles().FindByName(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return role, true
}

func namesOf(perms []rbac.Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}
