package api

import (
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
)

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.manager.Permissions().ListAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := s.manager.Permissions().Create(r.Context(), req.Name, req.Description)
	s.record(r, audit.EventTypeAdminPermissionCreate, audit.ResourceTypePermission, req.Name, nil, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, perm)
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	perm, err := s.manager.Permissions().FindByName(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// updatePermission renames and/or redescribes a permission. An empty name
// keeps the current one.
func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	var req PermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	perm, err := s.manager.Permissions().FindByName(ctx, name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == "" {
		req.Name = perm.Name
	}

	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"name": perm.Name, "description": perm.Description},
		After:  map[string]interface{}{"name": req.Name, "description": req.Description},
	}
	updated, err := s.manager.Permissions().Update(ctx, perm, req.Name, req.Description)
	s.record(r, audit.EventTypeAdminPermissionUpdate, audit.ResourceTypePermission, name, changes, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	ctx := r.Context()
	perm, err := s.manager.Permissions().FindByName(ctx, name)
	if err == nil {
		err = s.manager.Permissions().Delete(ctx, perm)
	}
	s.record(r, audit.EventTypeAdminPermissionDelete, audit.ResourceTypePermission, name, nil, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
