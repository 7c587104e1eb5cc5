package rbac

import (
	"context"
	"errors"
	"fmt"
)

// PermissionService manages the permission lifecycle and direct subject grants
type PermissionService struct {
	store Store
	opts  options
}

// NewPermissionService creates a new permission service
func NewPermissionService(store Store, opts ...Option) *PermissionService {
	return &PermissionService{
		store: store,
		opts:  buildOptions(opts),
	}
}

// Create creates a new permission
func (s *PermissionService) Create(ctx context.Context, name, description string) (*Permission, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	now := s.opts.timestamp()
	perm := &Permission{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SavePermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	s.opts.logger.WithFields(map[string]interface{}{
		"permission_id":   perm.ID,
		"permission_name": perm.Name,
	}).Info("permission created")
	return perm, nil
}

// Update renames a permission and replaces its description. Renaming a
// permission to its current name is allowed.
func (s *PermissionService) Update(ctx context.Context, perm *Permission, name, description string) (*Permission, error) {
	if perm == nil || perm.ID == 0 {
		return nil, NewNotFoundError(KindPermission)
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, name, perm.ID); err != nil {
		return nil, err
	}

	updated := *perm
	updated.Name = name
	updated.Description = description
	updated.UpdatedAt = s.opts.timestamp()
	if err := s.store.SavePermission(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	*perm = updated
	s.opts.logger.WithFields(map[string]interface{}{
		"permission_id":   perm.ID,
		"permission_name": perm.Name,
	}).Info("permission updated")
	return perm, nil
}

// Delete removes a permission together with its role memberships and direct grants
func (s *PermissionService) Delete(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.ID == 0 {
		return NewNotFoundError(KindPermission)
	}
	if err := s.store.RemovePermission(ctx, perm.ID); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	s.opts.logger.WithFields(map[string]interface{}{
		"permission_id":   perm.ID,
		"permission_name": perm.Name,
	}).Info("permission deleted")
	return nil
}

// FindByName returns the permission with the given name
func (s *PermissionService) FindByName(ctx context.Context, name string) (*Permission, error) {
	return s.store.FindPermissionByName(ctx, name)
}

// FindByID returns the permission with the given id
func (s *PermissionService) FindByID(ctx context.Context, id int64) (*Permission, error) {
	return s.store.FindPermissionByID(ctx, id)
}

// FindByNames returns the permissions matching names. Missing names are not
// an error; callers diff the result against their input.
func (s *PermissionService) FindByNames(ctx context.Context, names []string) ([]*Permission, error) {
	names = uniqueNames(names)
	if len(names) == 0 {
		return []*Permission{}, nil
	}
	return s.store.FindPermissionsByNames(ctx, names)
}

// ListAll returns every permission ordered by name
func (s *PermissionService) ListAll(ctx context.Context) ([]*Permission, error) {
	return s.store.ListPermissions(ctx)
}

// Resolve turns a reference into a stored permission. Names are looked up;
// resolved permissions are returned as they are.
func (s *PermissionService) Resolve(ctx context.Context, ref PermissionRef) (*Permission, error) {
	switch r := ref.(type) {
	case PermissionName:
		return s.store.FindPermissionByName(ctx, string(r))
	case *Permission:
		if r == nil || r.ID == 0 {
			return nil, NewNotFoundError(KindPermission)
		}
		return r, nil
	case Permission:
		if r.ID == 0 {
			return nil, NewNotFoundError(KindPermission, r.Name)
		}
		return &r, nil
	default:
		return nil, NewNotFoundError(KindPermission)
	}
}

// ResolveAll resolves every reference with a single lookup for all names.
// When names are missing the error lists all of them. The result keeps input
// order with duplicates removed.
func (s *PermissionService) ResolveAll(ctx context.Context, refs []PermissionRef) ([]*Permission, error) {
	var names []string
	for _, ref := range refs {
		if name, ok := ref.(PermissionName); ok {
			names = append(names, string(name))
		}
	}

	byName := make(map[string]*Permission)
	if len(names) > 0 {
		found, err := s.store.FindPermissionsByNames(ctx, uniqueNames(names))
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			byName[p.Name] = p
		}
	}

	var (
		resolved = make([]*Permission, 0, len(refs))
		seen     = make(map[int64]bool, len(refs))
		missing  []string
	)
	for _, ref := range refs {
		var perm *Permission
		if name, ok := ref.(PermissionName); ok {
			perm = byName[string(name)]
			if perm == nil {
				if !containsString(missing, string(name)) {
					missing = append(missing, string(name))
				}
				continue
			}
		} else {
			p, err := s.Resolve(ctx, ref)
			if err != nil {
				return nil, err
			}
			perm = p
		}
		if !seen[perm.ID] {
			seen[perm.ID] = true
			resolved = append(resolved, perm)
		}
	}

	if len(missing) > 0 {
		return nil, NewNotFoundError(KindPermission, missing...)
	}
	return resolved, nil
}

// AssignPermissionTo grants a permission directly to a subject
func (s *PermissionService) AssignPermissionTo(ctx context.Context, subject Subject, ref PermissionRef) error {
	return s.AssignPermissionsTo(ctx, subject, []PermissionRef{ref})
}

// AssignPermissionsTo grants several permissions directly to a subject. All
// references are resolved before anything is written.
func (s *PermissionService) AssignPermissionsTo(ctx context.Context, subject Subject, refs []PermissionRef) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	perms, err := s.ResolveAll(ctx, refs)
	if err != nil {
		return err
	}

	grantedAt := s.opts.timestamp()
	for _, perm := range perms {
		grant := PermissionGrant{Subject: subject, PermissionID: perm.ID, GrantedAt: grantedAt}
		if err := s.store.AddPermissionGrant(ctx, grant); err != nil {
			return fmt.Errorf("failed to grant permission %s: %w", perm.Name, err)
		}
	}
	return nil
}

// RevokePermissionFrom removes a direct grant. Unknown permissions and absent
// grants are no-ops.
func (s *PermissionService) RevokePermissionFrom(ctx context.Context, subject Subject, ref PermissionRef) error {
	return s.RevokePermissionsFrom(ctx, subject, []PermissionRef{ref})
}

// RevokePermissionsFrom removes several direct grants
func (s *PermissionService) RevokePermissionsFrom(ctx context.Context, subject Subject, refs []PermissionRef) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	for _, ref := range refs {
		perm, err := s.Resolve(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.store.RemovePermissionGrant(ctx, subject, perm.ID); err != nil {
			return fmt.Errorf("failed to revoke permission %s: %w", perm.Name, err)
		}
	}
	return nil
}

// HasDirectPermission reports whether the subject holds the permission without
// going through a role. An unknown permission is reported as not held.
func (s *PermissionService) HasDirectPermission(ctx context.Context, subject Subject, ref PermissionRef) (bool, error) {
	perm, err := s.Resolve(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.hasGrant(ctx, subject, perm.ID)
}

// GetDirectPermissions returns the permissions granted directly to the subject, ordered by name
func (s *PermissionService) GetDirectPermissions(ctx context.Context, subject Subject) ([]*Permission, error) {
	return s.store.ListPermissionGrants(ctx, subject)
}

// SyncPermissionsTo replaces the subject's direct grants with exactly refs.
// Every reference must resolve; on failure nothing is written.
func (s *PermissionService) SyncPermissionsTo(ctx context.Context, subject Subject, refs []PermissionRef) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	perms, err := s.ResolveAll(ctx, refs)
	if err != nil {
		return err
	}

	ids := make([]int64, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	if err := s.store.ReplacePermissionGrants(ctx, subject, ids, s.opts.timestamp()); err != nil {
		return fmt.Errorf("failed to sync permissions for %s: %w", subject, err)
	}
	return nil
}

func (s *PermissionService) hasGrant(ctx context.Context, subject Subject, permissionID int64) (bool, error) {
	_, err := s.store.FindPermissionGrant(ctx, subject, permissionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ensureNameFree fails with a DuplicateNameError if a permission other than selfID owns name
func (s *PermissionService) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.store.FindPermissionByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return &DuplicateNameError{Kind: KindPermission, Name: name}
	}
	return nil
}

func uniqueNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
