package rbac

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Subject identifies an external entity that can hold roles and permissions.
// The system never looks inside a subject beyond its type discriminator and id.
type Subject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SubjectFromInt builds a Subject for entities keyed by an integer id
func SubjectFromInt(subjectType string, id int64) Subject {
	return Subject{Type: subjectType, ID: strconv.FormatInt(id, 10)}
}

// String returns "type:id"
func (s Subject) String() string {
	return s.Type + ":" + s.ID
}

// Validate checks that both parts of the subject are present
func (s Subject) Validate() error {
	if strings.TrimSpace(s.Type) == "" || strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSubject
	}
	return nil
}

// Permission is a named capability
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Permission) isPermissionRef() {}

// Role is a named set of permissions.
//
// The permission set can only be changed through RoleService, which keeps
// UpdatedAt current and persists the change. Permissions returns a copy.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	permissions map[int64]Permission
}

// RestoreRole rebuilds a role loaded from a store, including its permission set.
// Duplicate permission ids collapse to a single member.
func RestoreRole(id int64, name, description string, createdAt, updatedAt time.Time, permissions []Permission) *Role {
	role := &Role{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	for _, p := range permissions {
		role.add(p)
	}
	return role
}

// Permissions returns a snapshot of the role's permission set, ordered by name
func (r *Role) Permissions() []Permission {
	perms := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms
}

// PermissionIDs returns the ids in the role's permission set in ascending order
func (r *Role) PermissionIDs() []int64 {
	ids := make([]int64, 0, len(r.permissions))
	for id := range r.permissions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasPermission reports whether the permission with the given id is in the set
func (r *Role) HasPermission(permissionID int64) bool {
	_, ok := r.permissions[permissionID]
	return ok
}

// PermissionCount returns the size of the permission set
func (r *Role) PermissionCount() int {
	return len(r.permissions)
}

// Clone returns a deep copy of the role
func (r *Role) Clone() *Role {
	c := *r
	c.permissions = make(map[int64]Permission, len(r.permissions))
	for id, p := range r.permissions {
		c.permissions[id] = p
	}
	return &c
}

func (r *Role) add(p Permission) bool {
	if r.permissions == nil {
		r.permissions = make(map[int64]Permission)
	}
	if _, ok := r.permissions[p.ID]; ok {
		return false
	}
	r.permissions[p.ID] = p
	return true
}

func (r *Role) remove(permissionID int64) bool {
	if _, ok := r.permissions[permissionID]; !ok {
		return false
	}
	delete(r.permissions, permissionID)
	return true
}

func (r *Role) clear() bool {
	if len(r.permissions) == 0 {
		return false
	}
	r.permissions = make(map[int64]Permission)
	return true
}

// replace sets the permission set to exactly perms and reports whether membership changed
func (r *Role) replace(perms []*Permission) bool {
	next := make(map[int64]Permission, len(perms))
	for _, p := range perms {
		next[p.ID] = *p
	}
	changed := len(next) != len(r.permissions)
	if !changed {
		for id := range next {
			if _, ok := r.permissions[id]; !ok {
				changed = true
				break
			}
		}
	}
	r.permissions = next
	return changed
}

// RoleGrant records that a subject holds a role
type RoleGrant struct {
	Subject   Subject   `json:"subject"`
	RoleID    int64     `json:"role_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// PermissionGrant records that a subject holds a permission directly
type PermissionGrant struct {
	Subject      Subject   `json:"subject"`
	PermissionID int64     `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// PermissionRef is either a permission name or an already-resolved Permission.
// Implemented by PermissionName, Permission and *Permission.
type PermissionRef interface {
	isPermissionRef()
}

// PermissionName refers to a permission by its unique name
type PermissionName string

func (PermissionName) isPermissionRef() {}

// Names converts a list of names into permission references
func Names(names ...string) []PermissionRef {
	refs := make([]PermissionRef, len(names))
	for i, n := range names {
		refs[i] = PermissionName(n)
	}
	return refs
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Name == perms[j].Name {
			return perms[i].ID < perms[j].ID
		}
		return perms[i].Name < perms[j].Name
	})
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}
