// Package rbac implements role-based access control over opaque subjects.
//
// # Model
//
// A Permission is a named capability. A Role is a named set of permissions.
// A Subject is any external entity, identified only by a type discriminator
// and an id, that can hold roles and permissions:
//
//	subject := rbac.SubjectFromInt("User", 42)
//
// Subjects get permissions in two ways: directly through a PermissionGrant,
// or through a RoleGrant for a role whose set contains the permission.
//
// # Services
//
// PermissionService and RoleService own every mutation. They enforce name
// uniqueness, keep timestamps current and persist role membership changes in
// a single store write. Roles returned to callers expose their permission set
// as a snapshot only:
//
//	perm, _ := manager.Permissions().Create(ctx, "edit-posts", "")
//	role, _ := manager.Roles().Create(ctx, "editor", "")
//	_ = manager.Roles().AssignPermission(ctx, role, perm)
//	_ = manager.Roles().AssignRoleTo(ctx, subject, "editor")
//
// # Checking access
//
// Checker answers HasPermission, HasAnyPermission and HasAllPermissions.
// Direct grants are consulted first, then each of the subject's roles.
// Permission references are either a PermissionName or a resolved
// Permission; an unknown name fails the check with ErrNotFound instead of
// being reported as a denial:
//
//	ok, err := manager.Checker().HasPermission(ctx, subject, rbac.PermissionName("edit-posts"))
//
// # Errors
//
// Failures match one of ErrNotFound, ErrDuplicateName, ErrConflict,
// ErrStoreUnavailable, ErrInvalidName or ErrInvalidSubject with errors.Is.
// NotFoundError carries every missing name for bulk operations.
//
// # Deletion
//
// Deleting a permission removes it from all roles and direct grants.
// Deleting a role removes all of its grants. Both happen atomically in the
// store.
//
// # Storage
//
// The services consume the Store interface. Implementations live under
// pkg/storage: an in-memory store, a SQL store for PostgreSQL and SQLite, and
// a Redis store.
package rbac
