// Package storetest is a conformance suite that every rbac.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Factory returns an empty, ready-to-use store. The suite closes it.
type Factory func(t *testing.T) rbac.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the full rbac.Store contract against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s rbac.Store)
	}{
		{"SavePermissionAssignsID", testSavePermissionAssignsID},
		{"SavePermissionDuplicateName", testSavePermissionDuplicateName},
		{"SavePermissionRename", testSavePermissionRename},
		{"SavePermissionUnknownID", testSavePermissionUnknownID},
		{"FindPermissionNotFound", testFindPermissionNotFound},
		{"FindPermissionsByNames", testFindPermissionsByNames},
		{"ListPermissionsOrdered", testListPermissionsOrdered},
		{"RemovePermissionCascades", testRemovePermissionCascades},
		{"RemovePermissionNotFound", testRemovePermissionNotFound},
		{"SaveRoleWithPermissions", testSaveRoleWithPermissions},
		{"SaveRoleReplacesPermissionSet", testSaveRoleReplacesPermissionSet},
		{"SaveRoleUnknownPermission", testSaveRoleUnknownPermission},
		{"SaveRoleDuplicateName", testSaveRoleDuplicateName},
		{"UpdateRoleKeepsPermissionSet", testUpdateRoleKeepsPermissionSet},
		{"UpdateRoleDuplicateName", testUpdateRoleDuplicateName},
		{"ChangeRolePermissions", testChangeRolePermissions},
		{"ChangeRolePermissionsUnknownIDs", testChangeRolePermissionsUnknownIDs},
		{"ReplaceRolePermissions", testReplaceRolePermissions},
		{"FindRolesByNames", testFindRolesByNames},
		{"RemoveRoleCascades", testRemoveRoleCascades},
		{"RemoveRoleNotFound", testRemoveRoleNotFound},
		{"RoleGrantLifecycle", testRoleGrantLifecycle},
		{"RoleGrantUnknownRole", testRoleGrantUnknownRole},
		{"ListRoleGrantsCarriesPermissions", testListRoleGrantsCarriesPermissions},
		{"ReplaceRoleGrants", testReplaceRoleGrants},
		{"ReplaceRoleGrantsUnknownRole", testReplaceRoleGrantsUnknownRole},
		{"PermissionGrantLifecycle", testPermissionGrantLifecycle},
		{"PermissionGrantUnknownPermission", testPermissionGrantUnknownPermission},
		{"ReplacePermissionGrants", testReplacePermissionGrants},
		{"SubjectsAreIsolated", testSubjectsAreIsolated},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustPermission(t *testing.T, s rbac.Store, name string) *rbac.Permission {
	t.Helper()
	p := &rbac.Permission{Name: name, Description: name + " description", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.SavePermission(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func mustRole(t *testing.T, s rbac.Store, name string, perms ...*rbac.Permission) *rbac.Role {
	t.Helper()
	members := make([]rbac.Permission, len(perms))
	for i, p := range perms {
		members[i] = *p
	}
	r := rbac.RestoreRole(0, name, name+" description", base, base, members)
	require.NoError(t, s.SaveRole(context.Background(), r))
	require.NotZero(t, r.ID)
	return r
}

func names(perms []*rbac.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Name
	}
	return out
}

func roleNames(roles []*rbac.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Name
	}
	return out
}

func permissionNames(perms []rbac.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Name
	}
	return out
}

func testSavePermissionAssignsID(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	a := mustPermission(t, s, "posts.edit")
	b := mustPermission(t, s, "posts.delete")
	assert.NotEqual(t, a.ID, b.ID)

	got, err := s.FindPermissionByName(ctx, "posts.edit")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "posts.edit description", got.Description)
	assert.True(t, base.Equal(got.CreatedAt), "created_at %s", got.CreatedAt)
	assert.True(t, base.Equal(got.UpdatedAt), "updated_at %s", got.UpdatedAt)

	byID, err := s.FindPermissionByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "posts.delete", byID.Name)
}

func testSavePermissionDuplicateName(t *testing.T, s rbac.Store) {
	mustPermission(t, s, "posts.edit")

	dup := &rbac.Permission{Name: "posts.edit", CreatedAt: base, UpdatedAt: base}
	err := s.SavePermission(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rbac.ErrDuplicateName), "got %v", err)

	var dupErr *rbac.DuplicateNameError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "posts.edit", dupErr.Name)
}

func testSavePermissionRename(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	p := mustPermission(t, s, "posts.edit")
	other := mustPermission(t, s, "posts.view")

	later := base.Add(time.Hour)
	p.Name = "articles.edit"
	p.UpdatedAt = later
	require.NoError(t, s.SavePermission(ctx, p))

	_, err := s.FindPermissionByName(ctx, "posts.edit")
	assert.True(t, errors.Is(err, rbac.ErrNotFound))

	got, err := s.FindPermissionByName(ctx, "articles.edit")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, later.Equal(got.UpdatedAt))

	other.Name = "articles.edit"
	err = s.SavePermission(ctx, other)
	assert.True(t, errors.Is(err, rbac.ErrDuplicateName), "got %v", err)

	p.UpdatedAt = later.Add(time.Minute)
	assert.NoError(t, s.SavePermission(ctx, p), "saving under its own name must succeed")
}

func testSavePermissionUnknownID(t *testing.T, s rbac.Store) {
	p := &rbac.Permission{ID: 9999, Name: "ghost", CreatedAt: base, UpdatedAt: base}
	err := s.SavePermission(context.Background(), p)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testFindPermissionNotFound(t *testing.T, s rbac.Store) {
	ctx := context.Background()

	_, err := s.FindPermissionByName(ctx, "nope")
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	_, err = s.FindPermissionByID(ctx, 12345)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testFindPermissionsByNames(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	mustPermission(t, s, "c")
	mustPermission(t, s, "a")
	mustPermission(t, s, "b")

	got, err := s.FindPermissionsByNames(ctx, []string{"c", "missing", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(got))

	empty, err := s.FindPermissionsByNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListPermissionsOrdered(t *testing.T, s rbac.Store) {
	empty, err := s.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	mustPermission(t, s, "zeta")
	mustPermission(t, s, "alpha")
	mustPermission(t, s, "mu")

	got, err := s.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, names(got))
}

func testRemovePermissionCascades(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	role := mustRole(t, s, "editor", edit, view)
	subject := rbac.Subject{Type: "user", ID: "42"}
	require.NoError(t, s.AddPermissionGrant(ctx, rbac.PermissionGrant{Subject: subject, PermissionID: edit.ID, GrantedAt: base}))

	require.NoError(t, s.RemovePermission(ctx, edit.ID))

	_, err := s.FindPermissionByID(ctx, edit.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))

	reloaded, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.view"}, permissionNames(reloaded.Permissions()))

	direct, err := s.ListPermissionGrants(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, direct)

	_, err = s.FindPermissionGrant(ctx, subject, edit.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))
}

func testRemovePermissionNotFound(t *testing.T, s rbac.Store) {
	err := s.RemovePermission(context.Background(), 4242)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testSaveRoleWithPermissions(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	role := mustRole(t, s, "editor", view, edit)

	got, err := s.FindRoleByName(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	assert.Equal(t, "editor description", got.Description)
	assert.True(t, base.Equal(got.CreatedAt))
	assert.Equal(t, []string{"posts.edit", "posts.view"}, permissionNames(got.Permissions()))
	assert.True(t, got.HasPermission(edit.ID))

	byID, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, byID.PermissionCount())

	empty := mustRole(t, s, "nobody")
	got, err = s.FindRoleByID(ctx, empty.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PermissionCount())
}

func testSaveRoleReplacesPermissionSet(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	publish := mustPermission(t, s, "posts.publish")
	role := mustRole(t, s, "editor", edit, view)

	updated := rbac.RestoreRole(role.ID, "senior-editor", "promoted", role.CreatedAt, base.Add(time.Hour),
		[]rbac.Permission{*view, *publish})
	require.NoError(t, s.SaveRole(ctx, updated))
	assert.Equal(t, role.ID, updated.ID)

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "senior-editor", got.Name)
	assert.Equal(t, "promoted", got.Description)
	assert.Equal(t, []string{"posts.publish", "posts.view"}, permissionNames(got.Permissions()))

	_, err = s.FindRoleByName(ctx, "editor")
	assert.True(t, errors.Is(err, rbac.ErrNotFound))
}

func testSaveRoleUnknownPermission(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	role := mustRole(t, s, "editor", edit)

	ghost := rbac.Permission{ID: 9999, Name: "ghost"}
	broken := rbac.RestoreRole(role.ID, role.Name, role.Description, role.CreatedAt, base, []rbac.Permission{*edit, ghost})
	err := s.SaveRole(ctx, broken)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.edit"}, permissionNames(got.Permissions()), "failed save must not change the set")
}

func testSaveRoleDuplicateName(t *testing.T, s rbac.Store) {
	mustRole(t, s, "editor")
	dup := rbac.RestoreRole(0, "editor", "", base, base, nil)
	err := s.SaveRole(context.Background(), dup)
	assert.True(t, errors.Is(err, rbac.ErrDuplicateName), "got %v", err)
}

func testUpdateRoleKeepsPermissionSet(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	role := mustRole(t, s, "editor", edit)

	// a copy loaded before the set changed carries no permissions
	stale := rbac.RestoreRole(role.ID, "writer", "writes", role.CreatedAt, base.Add(time.Hour), nil)
	require.NoError(t, s.UpdateRole(ctx, stale))

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "writer", got.Name)
	assert.Equal(t, "writes", got.Description)
	assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))
	assert.Equal(t, []string{"posts.edit"}, permissionNames(got.Permissions()))

	_, err = s.FindRoleByName(ctx, "editor")
	assert.True(t, errors.Is(err, rbac.ErrNotFound))

	// renaming to its own name is allowed
	require.NoError(t, s.UpdateRole(ctx, stale))
}

func testUpdateRoleDuplicateName(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	mustRole(t, s, "editor")
	viewer := mustRole(t, s, "viewer")

	clash := rbac.RestoreRole(viewer.ID, "editor", "", base, base, nil)
	err := s.UpdateRole(ctx, clash)
	assert.True(t, errors.Is(err, rbac.ErrDuplicateName), "got %v", err)

	got, err := s.FindRoleByName(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, got.ID)

	ghost := rbac.RestoreRole(9999, "ghost", "", base, base, nil)
	err = s.UpdateRole(ctx, ghost)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testChangeRolePermissions(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	publish := mustPermission(t, s, "posts.publish")
	role := mustRole(t, s, "editor", edit)

	later := base.Add(time.Minute)
	require.NoError(t, s.ChangeRolePermissions(ctx, role.ID, []int64{view.ID, publish.ID}, []int64{edit.ID}, later))

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.publish", "posts.view"}, permissionNames(got.Permissions()))
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.Equal(t, "editor description", got.Description, "fields other than updated_at are untouched")

	// adding a member twice and removing an absent one are no-ops
	require.NoError(t, s.ChangeRolePermissions(ctx, role.ID, []int64{view.ID}, []int64{edit.ID}, later))
	got, err = s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PermissionCount())

	err = s.ChangeRolePermissions(ctx, 9999, []int64{view.ID}, nil, later)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testChangeRolePermissionsUnknownIDs(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	role := mustRole(t, s, "editor", edit)

	err := s.ChangeRolePermissions(ctx, role.ID, []int64{view.ID, 9999}, []int64{edit.ID}, base.Add(time.Minute))
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.edit"}, permissionNames(got.Permissions()), "failed change must not touch the set")
	assert.True(t, base.Equal(got.UpdatedAt))
}

func testReplaceRolePermissions(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	publish := mustPermission(t, s, "posts.publish")
	role := mustRole(t, s, "editor", edit, view)

	require.NoError(t, s.ReplaceRolePermissions(ctx, role.ID, []int64{view.ID, publish.ID}, base.Add(time.Minute)))
	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "editor", got.Name)
	assert.Equal(t, []string{"posts.publish", "posts.view"}, permissionNames(got.Permissions()))

	err = s.ReplaceRolePermissions(ctx, role.ID, []int64{edit.ID, 9999}, base.Add(2*time.Minute))
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
	got, err = s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.publish", "posts.view"}, permissionNames(got.Permissions()))

	require.NoError(t, s.ReplaceRolePermissions(ctx, role.ID, nil, base.Add(3*time.Minute)))
	got, err = s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PermissionCount())

	err = s.ReplaceRolePermissions(ctx, 9999, nil, base)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testFindRolesByNames(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	p := mustPermission(t, s, "posts.view")
	mustRole(t, s, "viewer", p)
	mustRole(t, s, "admin")

	got, err := s.FindRolesByNames(ctx, []string{"viewer", "ghost", "admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, roleNames(got))
	assert.Equal(t, 1, got[1].PermissionCount())

	all, err := s.ListRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, roleNames(all))
}

func testRemoveRoleCascades(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	p := mustPermission(t, s, "posts.edit")
	role := mustRole(t, s, "editor", p)
	subject := rbac.Subject{Type: "user", ID: "42"}
	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: role.ID, GrantedAt: base}))

	require.NoError(t, s.RemoveRole(ctx, role.ID))

	_, err := s.FindRoleByID(ctx, role.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))

	held, err := s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, held)

	_, err = s.FindPermissionByID(ctx, p.ID)
	assert.NoError(t, err, "permissions outlive the roles that contain them")
}

func testRemoveRoleNotFound(t *testing.T, s rbac.Store) {
	err := s.RemoveRole(context.Background(), 777)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testRoleGrantLifecycle(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	role := mustRole(t, s, "editor")
	subject := rbac.Subject{Type: "user", ID: "42"}

	_, err := s.FindRoleGrant(ctx, subject, role.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))

	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: role.ID, GrantedAt: base}))
	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: role.ID, GrantedAt: base.Add(time.Hour)}))

	grant, err := s.FindRoleGrant(ctx, subject, role.ID)
	require.NoError(t, err)
	assert.Equal(t, subject, grant.Subject)
	assert.True(t, base.Equal(grant.GrantedAt), "repeat grant must keep the first timestamp, got %s", grant.GrantedAt)

	held, err := s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, roleNames(held))

	require.NoError(t, s.RemoveRoleGrant(ctx, subject, role.ID))
	require.NoError(t, s.RemoveRoleGrant(ctx, subject, role.ID), "removing an absent grant is a no-op")

	held, err = s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func testRoleGrantUnknownRole(t *testing.T, s rbac.Store) {
	subject := rbac.Subject{Type: "user", ID: "42"}
	err := s.AddRoleGrant(context.Background(), rbac.RoleGrant{Subject: subject, RoleID: 31337, GrantedAt: base})
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testListRoleGrantsCarriesPermissions(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	editor := mustRole(t, s, "editor", edit, view)
	viewer := mustRole(t, s, "viewer", view)
	subject := rbac.Subject{Type: "user", ID: "42"}

	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: viewer.ID, GrantedAt: base}))
	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: editor.ID, GrantedAt: base}))

	held, err := s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	require.Len(t, held, 2)
	assert.Equal(t, []string{"editor", "viewer"}, roleNames(held))
	assert.Equal(t, []string{"posts.edit", "posts.view"}, permissionNames(held[0].Permissions()))
	assert.Equal(t, []string{"posts.view"}, permissionNames(held[1].Permissions()))
}

func testReplaceRoleGrants(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	a := mustRole(t, s, "a")
	b := mustRole(t, s, "b")
	c := mustRole(t, s, "c")
	subject := rbac.Subject{Type: "user", ID: "7"}

	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: a.ID, GrantedAt: base}))
	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: b.ID, GrantedAt: base}))

	later := base.Add(2 * time.Hour)
	require.NoError(t, s.ReplaceRoleGrants(ctx, subject, []int64{b.ID, c.ID}, later))

	held, err := s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, roleNames(held))

	kept, err := s.FindRoleGrant(ctx, subject, b.ID)
	require.NoError(t, err)
	assert.True(t, base.Equal(kept.GrantedAt), "surviving grant keeps its timestamp")

	added, err := s.FindRoleGrant(ctx, subject, c.ID)
	require.NoError(t, err)
	assert.True(t, later.Equal(added.GrantedAt))

	require.NoError(t, s.ReplaceRoleGrants(ctx, subject, nil, later))
	held, err = s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func testReplaceRoleGrantsUnknownRole(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	a := mustRole(t, s, "a")
	subject := rbac.Subject{Type: "user", ID: "7"}
	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: subject, RoleID: a.ID, GrantedAt: base}))

	err := s.ReplaceRoleGrants(ctx, subject, []int64{9999}, base)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	held, err := s.ListRoleGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, roleNames(held), "failed replace must leave grants untouched")
}

func testPermissionGrantLifecycle(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	edit := mustPermission(t, s, "posts.edit")
	view := mustPermission(t, s, "posts.view")
	subject := rbac.Subject{Type: "service", ID: "billing"}

	require.NoError(t, s.AddPermissionGrant(ctx, rbac.PermissionGrant{Subject: subject, PermissionID: view.ID, GrantedAt: base}))
	require.NoError(t, s.AddPermissionGrant(ctx, rbac.PermissionGrant{Subject: subject, PermissionID: edit.ID, GrantedAt: base}))
	require.NoError(t, s.AddPermissionGrant(ctx, rbac.PermissionGrant{Subject: subject, PermissionID: edit.ID, GrantedAt: base.Add(time.Hour)}))

	grant, err := s.FindPermissionGrant(ctx, subject, edit.ID)
	require.NoError(t, err)
	assert.True(t, base.Equal(grant.GrantedAt))

	direct, err := s.ListPermissionGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.edit", "posts.view"}, names(direct))

	require.NoError(t, s.RemovePermissionGrant(ctx, subject, edit.ID))
	require.NoError(t, s.RemovePermissionGrant(ctx, subject, edit.ID))

	_, err = s.FindPermissionGrant(ctx, subject, edit.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))
}

func testPermissionGrantUnknownPermission(t *testing.T, s rbac.Store) {
	subject := rbac.Subject{Type: "user", ID: "42"}
	err := s.AddPermissionGrant(context.Background(), rbac.PermissionGrant{Subject: subject, PermissionID: 5150, GrantedAt: base})
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
}

func testReplacePermissionGrants(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	a := mustPermission(t, s, "a")
	b := mustPermission(t, s, "b")
	c := mustPermission(t, s, "c")
	subject := rbac.Subject{Type: "user", ID: "7"}

	require.NoError(t, s.ReplacePermissionGrants(ctx, subject, []int64{a.ID, b.ID}, base))
	require.NoError(t, s.ReplacePermissionGrants(ctx, subject, []int64{b.ID, c.ID}, base.Add(time.Hour)))

	direct, err := s.ListPermissionGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(direct))

	kept, err := s.FindPermissionGrant(ctx, subject, b.ID)
	require.NoError(t, err)
	assert.True(t, base.Equal(kept.GrantedAt))

	err = s.ReplacePermissionGrants(ctx, subject, []int64{a.ID, 8888}, base)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	direct, err = s.ListPermissionGrants(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(direct))
}

func testSubjectsAreIsolated(t *testing.T, s rbac.Store) {
	ctx := context.Background()
	role := mustRole(t, s, "editor")
	user := rbac.Subject{Type: "user", ID: "1"}
	team := rbac.Subject{Type: "team", ID: "1"}

	require.NoError(t, s.AddRoleGrant(ctx, rbac.RoleGrant{Subject: user, RoleID: role.ID, GrantedAt: base}))

	held, err := s.ListRoleGrants(ctx, team)
	require.NoError(t, err)
	assert.Empty(t, held, "subjects with the same id but a different type share nothing")

	_, err = s.FindRoleGrant(ctx, team, role.ID)
	assert.True(t, errors.Is(err, rbac.ErrNotFound))
}

func testPing(t *testing.T, s rbac.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
