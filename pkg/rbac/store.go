package rbac

import (
	"context"
	"time"
)

// PermissionStore persists Permission records.
//
// SavePermission inserts when ID is zero (assigning the new ID) and updates
// otherwise. A name already owned by another record yields ErrDuplicateName
// from the store's own uniqueness constraint. RemovePermission also drops the
// permission from every role and direct grant in the same transaction.
type PermissionStore interface {
	SavePermission(ctx context.Context, perm *Permission) error
	RemovePermission(ctx context.Context, id int64) error
	FindPermissionByName(ctx context.Context, name string) (*Permission, error)
	FindPermissionsByNames(ctx context.Context, names []string) ([]*Permission, error)
	FindPermissionByID(ctx context.Context, id int64) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
}

// RoleStore persists Role records.
//
// SaveRole inserts when ID is zero and otherwise writes the role's fields and
// its full permission set atomically. UpdateRole writes name, description and
// UpdatedAt only and never touches membership. ChangeRolePermissions applies
// add and remove against the stored set, and ReplaceRolePermissions swaps the
// stored set for exactly permissionIDs; both stamp updatedAt and leave name and
// description alone. Unknown permission ids yield ErrNotFound and nothing is written.
type RoleStore interface {
	SaveRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) error
	RemoveRole(ctx context.Context, id int64) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	FindRolesByNames(ctx context.Context, names []string) ([]*Role, error)
	FindRoleByID(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
}

// GrantStore records which subjects hold which roles and direct permissions.
//
// Add is idempotent and returns ErrNotFound if the granted entity no longer
// exists. Remove of an absent grant is a no-op. Replace swaps the subject's
// whole grant set atomically, keeping GrantedAt for grants that survive.
type GrantStore interface {
	AddRoleGrant(ctx context.Context, grant RoleGrant) error
	RemoveRoleGrant(ctx context.Context, subject Subject, roleID int64) error
	FindRoleGrant(ctx context.Context, subject Subject, roleID int64) (*RoleGrant, error)
	ListRoleGrants(ctx context.Context, subject Subject) ([]*Role, error)
	ReplaceRoleGrants(ctx context.Context, subject Subject, roleIDs []int64, grantedAt time.Time) error

	AddPermissionGrant(ctx context.Context, grant PermissionGrant) error
	RemovePermissionGrant(ctx context.Context, subject Subject, permissionID int64) error
	FindPermissionGrant(ctx context.Context, subject Subject, permissionID int64) (*PermissionGrant, error)
	ListPermissionGrants(ctx context.Context, subject Subject) ([]*Permission, error)
	ReplacePermissionGrants(ctx context.Context, subject Subject, permissionIDs []int64, grantedAt time.Time) error
}

// Store is the full persistence contract consumed by the services
type Store interface {
	PermissionStore
	RoleStore
	GrantStore

	Ping(ctx context.Context) error
	Close() error
}

// Migrator is implemented by stores that need schema setup before use
type Migrator interface {
	Migrate(ctx context.Context) error
}
