package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RoleService manages the role lifecycle, role permission sets and subject role grants
type RoleService struct {
	store       Store
	permissions *PermissionService
	opts        options
}

// NewRoleService creates a new role service. Permission references are
// resolved through permissions.
func NewRoleService(store Store, permissions *PermissionService, opts ...Option) *RoleService {
	return &RoleService{
		store:       store,
		permissions: permissions,
		opts:        buildOptions(opts),
	}
}

// Create creates a new role with an empty permission set
func (s *RoleService) Create(ctx context.Context, name, description string) (*Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	now := s.opts.timestamp()
	role := &Role{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveRole(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.opts.logger.WithFields(map[string]interface{}{
		"role_id":   role.ID,
		"role_name": role.Name,
	}).Info("role created")
	return role, nil
}

// Update renames a role and replaces its description. The permission set is
// not written; the caller's value is refreshed with the stored set.
func (s *RoleService) Update(ctx context.Context, role *Role, name, description string) (*Role, error) {
	if role == nil || role.ID == 0 {
		return nil, NewNotFoundError(KindRole)
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, name, role.ID); err != nil {
		return nil, err
	}

	current, err := s.store.FindRoleByID(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	current.Name = name
	current.Description = description
	current.UpdatedAt = s.opts.timestamp()
	if err := s.store.UpdateRole(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	*role = *current
	s.opts.logger.WithFields(map[string]interface{}{
		"role_id":   role.ID,
		"role_name": role.Name,
	}).Info("role updated")
	return role, nil
}

// Delete removes a role together with every subject grant of it
func (s *RoleService) Delete(ctx context.Context, role *Role) error {
	if role == nil || role.ID == 0 {
		return NewNotFoundError(KindRole)
	}
	if err := s.store.RemoveRole(ctx, role.ID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	s.opts.logger.WithFields(map[string]interface{}{
		"role_id":   role.ID,
		"role_name": role.Name,
	}).Info("role deleted")
	return nil
}

// FindByName returns the role with the given name
func (s *RoleService) FindByName(ctx context.Context, name string) (*Role, error) {
	return s.store.FindRoleByName(ctx, name)
}

// FindByID returns the role with the given id
func (s *RoleService) FindByID(ctx context.Context, id int64) (*Role, error) {
	return s.store.FindRoleByID(ctx, id)
}

// FindByNames returns the roles matching names, skipping missing ones
func (s *RoleService) FindByNames(ctx context.Context, names []string) ([]*Role, error) {
	names = uniqueNames(names)
	if len(names) == 0 {
		return []*Role{}, nil
	}
	return s.store.FindRolesByNames(ctx, names)
}

// ListAll returns every role ordered by name
func (s *RoleService) ListAll(ctx context.Context) ([]*Role, error) {
	return s.store.ListRoles(ctx)
}

// AssignPermission adds a permission to the role's set
func (s *RoleService) AssignPermission(ctx context.Context, role *Role, ref PermissionRef) error {
	return s.AssignPermissions(ctx, role, []PermissionRef{ref})
}

// AssignPermissions adds several permissions to the role's set in one write
func (s *RoleService) AssignPermissions(ctx context.Context, role *Role, refs []PermissionRef) error {
	perms, err := s.permissions.ResolveAll(ctx, refs)
	if err != nil {
		return err
	}
	return s.mutate(ctx, role, "assign", func(current *Role) roleWrite {
		var added []int64
		for _, p := range perms {
			if current.add(*p) {
				added = append(added, p.ID)
			}
		}
		if len(added) == 0 {
			return nil
		}
		return func(ctx context.Context, at time.Time) error {
			return s.store.ChangeRolePermissions(ctx, current.ID, added, nil, at)
		}
	})
}

// AssignPermissionsByName adds the named permissions to the role. If any name
// does not exist the error lists every missing name and nothing is assigned.
func (s *RoleService) AssignPermissionsByName(ctx context.Context, role *Role, names []string) error {
	return s.AssignPermissions(ctx, role, Names(names...))
}

// RevokePermission removes a permission from the role's set. Revoking a
// permission the role does not hold is a no-op.
func (s *RoleService) RevokePermission(ctx context.Context, role *Role, ref PermissionRef) error {
	perm, err := s.permissions.Resolve(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.mutate(ctx, role, "revoke", func(current *Role) roleWrite {
		if !current.remove(perm.ID) {
			return nil
		}
		return func(ctx context.Context, at time.Time) error {
			return s.store.ChangeRolePermissions(ctx, current.ID, nil, []int64{perm.ID}, at)
		}
	})
}

// RevokeAllPermissions empties the role's permission set
func (s *RoleService) RevokeAllPermissions(ctx context.Context, role *Role) error {
	return s.mutate(ctx, role, "revoke_all", func(current *Role) roleWrite {
		if !current.clear() {
			return nil
		}
		return func(ctx context.Context, at time.Time) error {
			return s.store.ReplaceRolePermissions(ctx, current.ID, nil, at)
		}
	})
}

// SyncPermissions replaces the role's permission set with exactly refs
func (s *RoleService) SyncPermissions(ctx context.Context, role *Role, refs []PermissionRef) error {
	perms, err := s.permissions.ResolveAll(ctx, refs)
	if err != nil {
		return err
	}
	return s.mutate(ctx, role, "sync", func(current *Role) roleWrite {
		if !current.replace(perms) {
			return nil
		}
		return func(ctx context.Context, at time.Time) error {
			return s.store.ReplaceRolePermissions(ctx, current.ID, current.PermissionIDs(), at)
		}
	})
}

// roleWrite persists a permission set change computed by a mutate plan
type roleWrite func(ctx context.Context, at time.Time) error

// mutate reloads the role, lets plan apply its change to the stored set and
// persist only that delta, then publishes the result to the caller's value.
// A nil write means the stored set already matches.
func (s *RoleService) mutate(ctx context.Context, role *Role, op string, plan func(current *Role) roleWrite) error {
	if role == nil || role.ID == 0 {
		return NewNotFoundError(KindRole)
	}

	current, err := s.store.FindRoleByID(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to %s permissions for role %s: %w", op, role.Name, err)
	}
	write := plan(current)
	if write == nil {
		*role = *current
		return nil
	}
	at := s.opts.timestamp()
	if err := write(ctx, at); err != nil {
		return fmt.Errorf("failed to %s permissions for role %s: %w", op, role.Name, err)
	}
	current.UpdatedAt = at

	*role = *current
	s.opts.logger.WithFields(map[string]interface{}{
		"role_name":   role.Name,
		"operation":   op,
		"permissions": role.PermissionCount(),
	}).Debug("role permissions changed")
	return nil
}

// AssignRoleTo grants the named role to a subject
func (s *RoleService) AssignRoleTo(ctx context.Context, subject Subject, roleName string) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	grant := RoleGrant{Subject: subject, RoleID: role.ID, GrantedAt: s.opts.timestamp()}
	if err := s.store.AddRoleGrant(ctx, grant); err != nil {
		return fmt.Errorf("failed to assign role %s: %w", roleName, err)
	}
	return nil
}

// RemoveRoleFrom revokes the named role from a subject. Unknown roles and
// absent grants are no-ops.
func (s *RoleService) RemoveRoleFrom(ctx context.Context, subject Subject, roleName string) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	role, err := s.store.FindRoleByName(ctx, roleName)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.RemoveRoleGrant(ctx, subject, role.ID); err != nil {
		return fmt.Errorf("failed to remove role %s: %w", roleName, err)
	}
	return nil
}

// HasRole reports whether the subject holds the named role. A role that no
// longer exists is never held.
func (s *RoleService) HasRole(ctx context.Context, subject Subject, roleName string) (bool, error) {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = s.store.FindRoleGrant(ctx, subject, role.ID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRoles returns the names of the roles granted to the subject, ordered by name
func (s *RoleService) GetRoles(ctx context.Context, subject Subject) ([]string, error) {
	roles, err := s.store.ListRoleGrants(ctx, subject)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names, nil
}

// GetSubjectRoles returns the roles granted to the subject with their permission sets
func (s *RoleService) GetSubjectRoles(ctx context.Context, subject Subject) ([]*Role, error) {
	return s.store.ListRoleGrants(ctx, subject)
}

// SyncRoles replaces the subject's role grants with exactly the named roles.
// Names that match no role are skipped.
func (s *RoleService) SyncRoles(ctx context.Context, subject Subject, roleNames []string) error {
	if err := subject.Validate(); err != nil {
		return err
	}

	names := uniqueNames(roleNames)
	var roles []*Role
	if len(names) > 0 {
		found, err := s.store.FindRolesByNames(ctx, names)
		if err != nil {
			return err
		}
		roles = found
	}
	if len(roles) != len(names) {
		s.opts.logger.WithSubject(subject).WithFields(map[string]interface{}{
			"requested": len(names),
			"found":     len(roles),
		}).Debug("skipping unknown roles during sync")
	}

	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	if err := s.store.ReplaceRoleGrants(ctx, subject, ids, s.opts.timestamp()); err != nil {
		return fmt.Errorf("failed to sync roles for %s: %w", subject, err)
	}
	return nil
}

func (s *RoleService) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.store.FindRoleByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return &DuplicateNameError{Kind: KindRole, Name: name}
	}
	return nil
}
