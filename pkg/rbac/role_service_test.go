package rbac_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func permissionNames(role *rbac.Role) []string {
	perms := role.Permissions()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}

func TestRoleService_CreateUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor, err := f.roles.Create(ctx, " editor ", "Edits content")
	require.NoError(t, err)
	assert.Equal(t, "editor", editor.Name)
	assert.Zero(t, editor.PermissionCount())

	_, err = f.roles.Create(ctx, "editor", "")
	assert.ErrorIs(t, err, rbac.ErrDuplicateName)
	_, err = f.roles.Create(ctx, "", "")
	assert.ErrorIs(t, err, rbac.ErrInvalidName)

	f.clock.Advance(time.Hour)
	_, err = f.roles.Update(ctx, editor, "writer", "Writes content")
	require.NoError(t, err)
	assert.Equal(t, "writer", editor.Name)
	assert.True(t, editor.UpdatedAt.After(editor.CreatedAt))

	found, err := f.roles.FindByName(ctx, "writer")
	require.NoError(t, err)
	assert.Equal(t, "Writes content", found.Description)

	require.NoError(t, f.roles.Delete(ctx, editor))
	_, err = f.roles.FindByID(ctx, editor.ID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assert.ErrorIs(t, f.roles.Delete(ctx, editor), rbac.ErrNotFound)
}

func TestRoleService_UpdateNameUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "admin")
	editor := f.role(t, "editor")

	_, err := f.roles.Update(ctx, editor, "admin", "taken")
	assert.ErrorIs(t, err, rbac.ErrDuplicateName)
	assert.Equal(t, "editor", editor.Name, "failed update leaves the value untouched")

	stored, err := f.roles.FindByName(ctx, "admin")
	require.NoError(t, err)
	assert.NotEqual(t, editor.ID, stored.ID)

	updated, err := f.roles.Update(ctx, editor, "editor", "Edits content")
	require.NoError(t, err)
	assert.Equal(t, "editor", updated.Name)
	assert.Equal(t, "Edits content", updated.Description)
}

func TestRoleService_StaleUpdateKeepsRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "posts.delete")
	f.role(t, "editor", "posts.delete")
	subject := user("42")
	require.NoError(t, f.roles.AssignRoleTo(ctx, subject, "editor"))

	stale, err := f.roles.FindByName(ctx, "editor")
	require.NoError(t, err)
	current, err := f.roles.FindByName(ctx, "editor")
	require.NoError(t, err)
	require.NoError(t, f.roles.RevokePermission(ctx, current, rbac.PermissionName("posts.delete")))

	_, err = f.roles.Update(ctx, stale, "editor", "Edits content")
	require.NoError(t, err)
	assert.Zero(t, stale.PermissionCount(), "the caller's value reflects the stored set")

	stored, err := f.roles.FindByName(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, "Edits content", stored.Description)
	assert.Zero(t, stored.PermissionCount())

	allowed, err := f.checker.HasPermission(ctx, subject, rbac.PermissionName("posts.delete"))
	require.NoError(t, err)
	assert.False(t, allowed, "a revoked permission stays revoked")
}

func TestRoleService_StaleUpdateKeepsAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "posts.view")
	f.role(t, "viewer")

	stale, err := f.roles.FindByName(ctx, "viewer")
	require.NoError(t, err)
	current, err := f.roles.FindByName(ctx, "viewer")
	require.NoError(t, err)
	require.NoError(t, f.roles.AssignPermission(ctx, current, rbac.PermissionName("posts.view")))

	_, err = f.roles.Update(ctx, stale, "reader", "")
	require.NoError(t, err)

	stored, err := f.roles.FindByName(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.view"}, permissionNames(stored))
	assert.Equal(t, []string{"posts.view"}, permissionNames(stale))
}

func TestRoleService_StaleMutationsApplyToStoredSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "a")
	f.permission(t, "b")
	f.permission(t, "c")
	f.role(t, "r", "a")

	stale, err := f.roles.FindByName(ctx, "r")
	require.NoError(t, err)
	current, err := f.roles.FindByName(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, f.roles.AssignPermission(ctx, current, rbac.PermissionName("b")))

	require.NoError(t, f.roles.RevokePermission(ctx, stale, rbac.PermissionName("a")))
	assert.Equal(t, []string{"b"}, permissionNames(stale))

	require.NoError(t, f.roles.RevokePermission(ctx, current, rbac.PermissionName("b")))
	require.NoError(t, f.roles.AssignPermission(ctx, stale, rbac.PermissionName("c")))
	assert.Equal(t, []string{"c"}, permissionNames(stale))

	stored, err := f.roles.FindByName(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, permissionNames(stored))
}

func TestRoleService_UpdateAfterPermissionDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	edit := f.permission(t, "posts.edit")
	f.permission(t, "posts.view")
	editor := f.role(t, "editor", "posts.edit")
	require.True(t, editor.HasPermission(edit.ID))

	require.NoError(t, f.perms.Delete(ctx, edit))

	_, err := f.roles.Update(ctx, editor, "writer", "")
	require.NoError(t, err)
	assert.False(t, editor.HasPermission(edit.ID))

	require.NoError(t, f.roles.AssignPermission(ctx, editor, rbac.PermissionName("posts.view")))
	assert.Equal(t, []string{"posts.view"}, permissionNames(editor))
}

func TestRoleService_DeleteRemovesGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "posts.edit")
	editor := f.role(t, "editor", "posts.edit")
	subject := user("42")
	require.NoError(t, f.roles.AssignRoleTo(ctx, subject, "editor"))

	require.NoError(t, f.roles.Delete(ctx, editor))

	held, err := f.roles.HasRole(ctx, subject, "editor")
	require.NoError(t, err)
	assert.False(t, held)

	allowed, err := f.checker.HasPermission(ctx, subject, rbac.PermissionName("posts.edit"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRoleService_AssignPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.permission(t, "posts.view")
	f.permission(t, "posts.edit")
	editor := f.role(t, "editor")

	require.NoError(t, f.roles.AssignPermission(ctx, editor, view))
	require.NoError(t, f.roles.AssignPermission(ctx, editor, rbac.PermissionName("posts.edit")))
	assert.Equal(t, []string{"posts.edit", "posts.view"}, permissionNames(editor))

	stamp := editor.UpdatedAt
	f.clock.Advance(time.Minute)
	require.NoError(t, f.roles.AssignPermission(ctx, editor, rbac.PermissionName("posts.view")))
	assert.True(t, stamp.Equal(editor.UpdatedAt), "a no-op assignment does not touch the role")

	stored, err := f.roles.FindByID(ctx, editor.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.edit", "posts.view"}, permissionNames(stored))
}

func TestRoleService_AssignPermissionsByNameIsStrict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "posts.view")
	editor := f.role(t, "editor")

	err := f.roles.AssignPermissionsByName(ctx, editor, []string{"posts.view", "posts.fly", "posts.swim"})
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assert.Equal(t, []string{"posts.fly", "posts.swim"}, rbac.MissingNames(err))
	assert.Zero(t, editor.PermissionCount(), "nothing is assigned when a name is missing")

	stored, err := f.roles.FindByID(ctx, editor.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.PermissionCount())
}

func TestRoleService_RevokeAndSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "a")
	f.permission(t, "b")
	f.permission(t, "c")
	role := f.role(t, "r", "a", "b")

	require.NoError(t, f.roles.RevokePermission(ctx, role, rbac.PermissionName("a")))
	require.NoError(t, f.roles.RevokePermission(ctx, role, rbac.PermissionName("a")))
	require.NoError(t, f.roles.RevokePermission(ctx, role, rbac.PermissionName("nope")))
	assert.Equal(t, []string{"b"}, permissionNames(role))

	require.NoError(t, f.roles.SyncPermissions(ctx, role, rbac.Names("c", "a")))
	assert.Equal(t, []string{"a", "c"}, permissionNames(role))

	err := f.roles.SyncPermissions(ctx, role, rbac.Names("b", "zzz"))
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assert.Equal(t, []string{"a", "c"}, permissionNames(role))

	require.NoError(t, f.roles.RevokeAllPermissions(ctx, role))
	assert.Zero(t, role.PermissionCount())

	stored, err := f.roles.FindByName(ctx, "r")
	require.NoError(t, err)
	assert.Zero(t, stored.PermissionCount())
}

func TestRoleService_FailedSaveLeavesRoleUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.permission(t, "a")
	role := f.role(t, "r")
	f.store.failRoleWrites = true

	err := f.roles.AssignPermission(ctx, role, rbac.PermissionName("a"))
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
	assert.Zero(t, role.PermissionCount())
}

func TestRoleService_SubjectGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "viewer")
	f.role(t, "admin")
	subject := user("42")

	require.NoError(t, f.roles.AssignRoleTo(ctx, subject, "viewer"))
	require.NoError(t, f.roles.AssignRoleTo(ctx, subject, "admin"))
	require.NoError(t, f.roles.AssignRoleTo(ctx, subject, "admin"))

	err := f.roles.AssignRoleTo(ctx, subject, "ghost")
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	names, err := f.roles.GetRoles(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, names)

	held, err := f.roles.HasRole(ctx, subject, "viewer")
	require.NoError(t, err)
	assert.True(t, held)

	held, err = f.roles.HasRole(ctx, subject, "ghost")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, f.roles.RemoveRoleFrom(ctx, subject, "viewer"))
	require.NoError(t, f.roles.RemoveRoleFrom(ctx, subject, "viewer"))
	require.NoError(t, f.roles.RemoveRoleFrom(ctx, subject, "ghost"))

	roles, err := f.roles.GetSubjectRoles(ctx, subject)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "admin", roles[0].Name)
}

func TestRoleService_SyncRolesSkipsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.role(t, "a")
	f.role(t, "b")
	f.role(t, "c")
	subject := user("9")

	require.NoError(t, f.roles.SyncRoles(ctx, subject, []string{"a", "b"}))
	require.NoError(t, f.roles.SyncRoles(ctx, subject, []string{"b", "c", "unknown"}))

	names, err := f.roles.GetRoles(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names)

	require.NoError(t, f.roles.SyncRoles(ctx, subject, nil))
	names, err = f.roles.GetRoles(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, names)

	assert.ErrorIs(t, f.roles.SyncRoles(ctx, rbac.Subject{}, []string{"a"}), rbac.ErrInvalidSubject)
}
