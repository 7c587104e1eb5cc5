// Package memory provides an in-process rbac.Store guarded by a single mutex.
// It is used for tests and single-replica deployments that seed their policy
// from a file on startup.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

var errClosed = errors.New("memory store closed")

type roleRecord struct {
	id          int64
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
	permissions map[int64]struct{}
}

// Store is an in-memory rbac.Store
type Store struct {
	mu sync.RWMutex

	nextPermissionID int64
	nextRoleID       int64

	permissions      map[int64]rbac.Permission
	permissionByName map[string]int64
	roles            map[int64]*roleRecord
	roleByName       map[string]int64

	roleGrants       map[rbac.Subject]map[int64]time.Time
	permissionGrants map[rbac.Subject]map[int64]time.Time

	closed bool
}

var _ rbac.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		permissions:      make(map[int64]rbac.Permission),
		permissionByName: make(map[string]int64),
		roles:            make(map[int64]*roleRecord),
		roleByName:       make(map[string]int64),
		roleGrants:       make(map[rbac.Subject]map[int64]time.Time),
		permissionGrants: make(map[rbac.Subject]map[int64]time.Time),
	}
}

func (s *Store) check(op string) error {
	if s.closed {
		return rbac.NewStoreError(op, errClosed)
	}
	return nil
}

// Ping reports whether the store is open
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return rbac.NewStoreError("ping", err)
	}
	return s.check("ping")
}

// Close marks the store closed; later calls fail with ErrStoreUnavailable
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SavePermission inserts or updates a permission
func (s *Store) SavePermission(ctx context.Context, perm *rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("save_permission"); err != nil {
		return err
	}

	if owner, ok := s.permissionByName[perm.Name]; ok && owner != perm.ID {
		return &rbac.DuplicateNameError{Kind: rbac.KindPermission, Name: perm.Name}
	}

	if perm.ID == 0 {
		s.nextPermissionID++
		perm.ID = s.nextPermissionID
	} else {
		old, ok := s.permissions[perm.ID]
		if !ok {
			return rbac.NewNotFoundError(rbac.KindPermission, perm.Name)
		}
		delete(s.permissionByName, old.Name)
	}

	s.permissions[perm.ID] = *perm
	s.permissionByName[perm.Name] = perm.ID
	return nil
}

// RemovePermission deletes a permission and every reference to it
func (s *Store) RemovePermission(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove_permission"); err != nil {
		return err
	}

	perm, ok := s.permissions[id]
	if !ok {
		return rbac.NewNotFoundError(rbac.KindPermission)
	}
	delete(s.permissions, id)
	delete(s.permissionByName, perm.Name)

	for _, role := range s.roles {
		delete(role.permissions, id)
	}
	for subject, grants := range s.permissionGrants {
		delete(grants, id)
		if len(grants) == 0 {
			delete(s.permissionGrants, subject)
		}
	}
	return nil
}

// FindPermissionByName looks up a permission by exact name
func (s *Store) FindPermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_permission_by_name"); err != nil {
		return nil, err
	}

	id, ok := s.permissionByName[name]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindPermission, name)
	}
	perm := s.permissions[id]
	return &perm, nil
}

// FindPermissionsByNames returns the permissions whose names are in names, ordered by name
func (s *Store) FindPermissionsByNames(ctx context.Context, names []string) ([]*rbac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_permissions_by_names"); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(names))
	perms := make([]*rbac.Permission, 0, len(names))
	for _, name := range names {
		id, ok := s.permissionByName[name]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		perm := s.permissions[id]
		perms = append(perms, &perm)
	}
	sortPermissions(perms)
	return perms, nil
}

// FindPermissionByID looks up a permission by id
func (s *Store) FindPermissionByID(ctx context.Context, id int64) (*rbac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_permission_by_id"); err != nil {
		return nil, err
	}

	perm, ok := s.permissions[id]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindPermission)
	}
	return &perm, nil
}

// ListPermissions returns every permission ordered by name
func (s *Store) ListPermissions(ctx context.Context) ([]*rbac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_permissions"); err != nil {
		return nil, err
	}

	perms := make([]*rbac.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		p := p
		perms = append(perms, &p)
	}
	sortPermissions(perms)
	return perms, nil
}

// SaveRole inserts or updates a role together with its permission set
func (s *Store) SaveRole(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("save_role"); err != nil {
		return err
	}

	if owner, ok := s.roleByName[role.Name]; ok && owner != role.ID {
		return &rbac.DuplicateNameError{Kind: rbac.KindRole, Name: role.Name}
	}

	members := make(map[int64]struct{}, role.PermissionCount())
	for _, id := range role.PermissionIDs() {
		if _, ok := s.permissions[id]; !ok {
			return rbac.NewNotFoundError(rbac.KindPermission)
		}
		members[id] = struct{}{}
	}

	if role.ID == 0 {
		s.nextRoleID++
		role.ID = s.nextRoleID
	} else {
		old, ok := s.roles[role.ID]
		if !ok {
			return rbac.NewNotFoundError(rbac.KindRole, role.Name)
		}
		delete(s.roleByName, old.name)
	}

	s.roles[role.ID] = &roleRecord{
		id:          role.ID,
		name:        role.Name,
		description: role.Description,
		createdAt:   role.CreatedAt,
		updatedAt:   role.UpdatedAt,
		permissions: members,
	}
	s.roleByName[role.Name] = role.ID
	return nil
}

// UpdateRole rewrites a role's name, description and update time
func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update_role"); err != nil {
		return err
	}

	rec, ok := s.roles[role.ID]
	if !ok {
		return rbac.NewNotFoundError(rbac.KindRole, role.Name)
	}
	if owner, ok := s.roleByName[role.Name]; ok && owner != role.ID {
		return &rbac.DuplicateNameError{Kind: rbac.KindRole, Name: role.Name}
	}

	delete(s.roleByName, rec.name)
	rec.name = role.Name
	rec.description = role.Description
	rec.updatedAt = role.UpdatedAt
	s.roleByName[rec.name] = rec.id
	return nil
}

// ChangeRolePermissions adds and removes members of a stored role's set
func (s *Store) ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("change_role_permissions"); err != nil {
		return err
	}

	rec, ok := s.roles[roleID]
	if !ok {
		return rbac.NewNotFoundError(rbac.KindRole)
	}
	if err := s.knownPermissions(add); err != nil {
		return err
	}

	for _, id := range add {
		rec.permissions[id] = struct{}{}
	}
	for _, id := range remove {
		delete(rec.permissions, id)
	}
	rec.updatedAt = updatedAt
	return nil
}

// ReplaceRolePermissions swaps a stored role's set for exactly permissionIDs
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("replace_role_permissions"); err != nil {
		return err
	}

	rec, ok := s.roles[roleID]
	if !ok {
		return rbac.NewNotFoundError(rbac.KindRole)
	}
	if err := s.knownPermissions(permissionIDs); err != nil {
		return err
	}

	members := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		members[id] = struct{}{}
	}
	rec.permissions = members
	rec.updatedAt = updatedAt
	return nil
}

func (s *Store) knownPermissions(ids []int64) error {
	for _, id := range ids {
		if _, ok := s.permissions[id]; !ok {
			return rbac.NewNotFoundError(rbac.KindPermission)
		}
	}
	return nil
}

// RemoveRole deletes a role and every grant of it
func (s *Store) RemoveRole(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove_role"); err != nil {
		return err
	}

	role, ok := s.roles[id]
	if !ok {
		return rbac.NewNotFoundError(rbac.KindRole)
	}
	delete(s.roles, id)
	delete(s.roleByName, role.name)

	for subject, grants := range s.roleGrants {
		delete(grants, id)
		if len(grants) == 0 {
			delete(s.roleGrants, subject)
		}
	}
	return nil
}

// FindRoleByName looks up a role by exact name
func (s *Store) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_role_by_name"); err != nil {
		return nil, err
	}

	id, ok := s.roleByName[name]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindRole, name)
	}
	return s.restore(s.roles[id]), nil
}

// FindRolesByNames returns the roles whose names are in names, ordered by name
func (s *Store) FindRolesByNames(ctx context.Context, names []string) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_roles_by_names"); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(names))
	roles := make([]*rbac.Role, 0, len(names))
	for _, name := range names {
		id, ok := s.roleByName[name]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		roles = append(roles, s.restore(s.roles[id]))
	}
	sortRoles(roles)
	return roles, nil
}

// FindRoleByID looks up a role by id
func (s *Store) FindRoleByID(ctx context.Context, id int64) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find_role_by_id"); err != nil {
		return nil, err
	}

	rec, ok := s.roles[id]
	if !ok {
		return nil, rbac.NewNotFoundError(rbac.KindRole)
	}
	return s.restore(rec), nil
}

// ListRoles returns every role ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_roles"); err != nil {
		return nil, err
	}

	roles := make([]*rbac.Role, 0, len(s.roles))
	for _, rec := range s.roles {
		roles = append(roles, s.restore(rec))
	}
	sortRoles(roles)
	return roles, nil
}

// restore must be called with the lock held
func (s *Store) restore(rec *roleRecord) *rbac.Role {
	perms := make([]rbac.Permission, 0, len(rec.permissions))
	for id := range rec.permissions {
		if p, ok := s.permissions[id]; ok {
			perms = append(perms, p)
		}
	}
	return rbac.RestoreRole(rec.id, rec.name, rec.description, rec.createdAt, rec.updatedAt, perms)
}

func sortPermissions(perms []*rbac.Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
}

func sortRoles(roles []*rbac.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}
