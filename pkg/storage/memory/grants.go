package memory

import (
	"context"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// AddRoleGrant records that a subject holds a role
func (s *Store) AddRoleGrant(ctx context.Context, grant rbac.RoleGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("add_role_grant"); err != nil {
		return err
	}
	if _, ok := s.roles[grant.RoleID]; !ok {
		return rbac.NewNotFoundError(rbac.KindRole)
	}
	addGrant(s.roleGrants, grant.Subject, grant.RoleID, grant.GrantedAt)
	return nil
}

// RemoveRoleGrant deletes a role grant if present
func (s *Store) RemoveRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove_role_grant"); err != nil {
		return err
	}
	removeGrant(s.roleGrants, subject, roleID)
	return nil
}

// FindRoleGrant returns the grant of roleID to subject
func (s *Store) FindRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) (*rbac.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_role_grant"); err != nil {
		return nil, err
	}
	grantedAt, ok := s.roleGrants[subject][roleID]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindGrant)
	}
	return &rbac.RoleGrant{Subject: subject, RoleID: roleID, GrantedAt: grantedAt}, nil
}

// ListRoleGrants returns the roles held by subject, ordered by name
func (s *Store) ListRoleGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_role_grants"); err != nil {
		return nil, err
	}

	grants := s.roleGrants[subject]
	roles := make([]*rbac.Role, 0, len(grants))
	for id := range grants {
		if rec, ok := s.roles[id]; ok {
			roles = append(roles, s.restore(rec))
		}
	}
	sortRoles(roles)
	return roles, nil
}

// ReplaceRoleGrants sets the subject's role grants to exactly roleIDs
func (s *Store) ReplaceRoleGrants(ctx context.Context, subject rbac.Subject, roleIDs []int64, grantedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("replace_role_grants"); err != nil {
		return err
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return rbac.NewNotFoundError(rbac.KindRole)
		}
	}
	replaceGrants(s.roleGrants, subject, roleIDs, grantedAt)
	return nil
}

// AddPermissionGrant records that a subject holds a permission directly
func (s *Store) AddPermissionGrant(ctx context.Context, grant rbac.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("add_permission_grant"); err != nil {
		return err
	}
	if _, ok := s.permissions[grant.PermissionID]; !ok {
		return rbac.NewNotFoundError(rbac.KindPermission)
	}
	addGrant(s.permissionGrants, grant.Subject, grant.PermissionID, grant.GrantedAt)
	return nil
}

// RemovePermissionGrant deletes a direct grant if present
func (s *Store) RemovePermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove_permission_grant"); err != nil {
		return err
	}
	removeGrant(s.permissionGrants, subject, permissionID)
	return nil
}

// FindPermissionGrant returns the direct grant of permissionID to subject
func (s *Store) FindPermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (*rbac.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_permission_grant"); err != nil {
		return nil, err
	}
	grantedAt, ok := s.permissionGrants[subject][permissionID]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindGrant)
	}
	return &rbac.PermissionGrant{Subject: subject, PermissionID: permissionID, GrantedAt: grantedAt}, nil
}

// ListPermissionGrants returns the permissions held directly by subject, ordered by name
func (s *Store) ListPermissionGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_permission_grants"); err != nil {
		return nil, err
	}

	grants := s.permissionGrants[subject]
	perms := make([]*rbac.Permission, 0, len(grants))
	for id := range grants {
		if p, ok := s.permissions[id]; ok {
			p := p
			perms = append(perms, &p)
		}
	}
	sortPermissions(perms)
	return perms, nil
}

// ReplacePermissionGrants sets the subject's direct grants to exactly permissionIDs
func (s *Store) ReplacePermissionGrants(ctx context.Context, subject rbac.Subject, permissionIDs []int64, grantedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("replace_permission_grants"); err != nil {
		return err
	}
	for _, id := range permissionIDs {
		if _, ok := s.permissions[id]; !ok {
			return rbac.NewNotFoundError(rbac.KindPermission)
		}
	}
	replaceGrants(s.permissionGrants, subject, permissionIDs, grantedAt)
	return nil
}

func addGrant(grants map[rbac.Subject]map[int64]time.Time, subject rbac.Subject, id int64, grantedAt time.Time) {
	held, ok := grants[subject]
	if !ok {
		held = make(map[int64]time.Time)
		grants[subject] = held
	}
	if _, exists := held[id]; !exists {
		held[id] = grantedAt
	}
}

func removeGrant(grants map[rbac.Subject]map[int64]time.Time, subject rbac.Subject, id int64) {
	held, ok := grants[subject]
	if !ok {
		return
	}
	delete(held, id)
	if len(held) == 0 {
		delete(grants, subject)
	}
}

func replaceGrants(grants map[rbac.Subject]map[int64]time.Time, subject rbac.Subject, ids []int64, grantedAt time.Time) {
	old := grants[subject]
	next := make(map[int64]time.Time, len(ids))
	for _, id := range ids {
		if at, ok := old[id]; ok {
			next[id] = at
		} else {
			next[id] = grantedAt
		}
	}
	if len(next) == 0 {
		delete(grants, subject)
		return
	}
	grants[subject] = next
}
