package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
)

const blogSeed = `
permissions:
  - name: posts.edit
    description: Edit any post
  - posts.view
  - name: posts.delete
roles:
  - name: editor
    description: Writes and fixes posts
    permissions: [posts.edit, posts.view]
  - name: reader
    permissions: [posts.view]
subjects:
  - type: User
    id: "42"
    roles: [editor]
  - type: User
    id: "7"
    roles: [reader]
    permissions: [posts.delete]
`

func newManager(t *testing.T) *rbac.Manager {
	t.Helper()
	m := rbac.NewManager(memory.New())
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestParse(t *testing.T) {
	file, err := Parse([]byte(blogSeed))
	require.NoError(t, err)

	assert.Equal(t, []PermissionSeed{
		{Name: "posts.edit", Description: "Edit any post"},
		{Name: "posts.view"},
		{Name: "posts.delete"},
	}, file.Permissions)
	require.Len(t, file.Roles, 2)
	assert.Equal(t, []string{"posts.edit", "posts.view"}, file.Roles[0].Permissions)
	require.Len(t, file.Subjects, 2)
	assert.Equal(t, rbac.Subject{Type: "User", ID: "42"}, file.Subjects[0].Subject())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"malformed yaml", "permissions: [", "failed to parse seed file"},
		{"empty permission name", "permissions:\n  - name: ''\n", "permissions[0]: name is required"},
		{"duplicate permission", "permissions: [a, a]\n", `duplicate permission "a"`},
		{"duplicate role", "roles:\n  - name: r\n  - name: r\n", `duplicate role "r"`},
		{"subject without id", "subjects:\n  - type: User\n", "subjects[0]: type and id are required"},
		{"duplicate subject", "subjects:\n  - {type: User, id: '1'}\n  - {type: User, id: '1'}\n", "duplicate subject User:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read seed file")
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	applier := NewApplier(m, nil)

	file, err := Parse([]byte(blogSeed))
	require.NoError(t, err)

	result, err := applier.Apply(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, &Result{PermissionsCreated: 3, RolesCreated: 2, SubjectsSynced: 2}, result)

	checker := m.Checker()
	allowed, err := checker.HasAllPermissions(ctx, rbac.Subject{Type: "User", ID: "42"}, rbac.Names("posts.edit", "posts.view"))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.HasPermission(ctx, rbac.Subject{Type: "User", ID: "7"}, rbac.PermissionName("posts.delete"))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.HasPermission(ctx, rbac.Subject{Type: "User", ID: "7"}, rbac.PermissionName("posts.edit"))
	require.NoError(t, err)
	assert.False(t, allowed)

	perm, err := m.Permissions().FindByName(ctx, "posts.edit")
	require.NoError(t, err)
	assert.Equal(t, "Edit any post", perm.Description)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	applier := NewApplier(m, nil)
	file, err := Parse([]byte(blogSeed))
	require.NoError(t, err)

	_, err = applier.Apply(ctx, file)
	require.NoError(t, err)
	editor, err := m.Roles().FindByName(ctx, "editor")
	require.NoError(t, err)

	result, err := applier.Apply(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, &Result{SubjectsSynced: 2}, result)

	again, err := m.Roles().FindByName(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, editor.UpdatedAt, again.UpdatedAt)
	assert.Equal(t, editor.PermissionIDs(), again.PermissionIDs())
}

func TestApply_Reconciles(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	applier := NewApplier(m, nil)
	first, err := Parse([]byte(blogSeed))
	require.NoError(t, err)
	_, err = applier.Apply(ctx, first)
	require.NoError(t, err)

	second, err := Parse([]byte(`
permissions:
  - name: posts.edit
    description: Edit posts
roles:
  - name: editor
    description: Writes and fixes posts
    permissions: [posts.edit]
subjects:
  - type: User
    id: "42"
    roles: []
    permissions: [posts.view]
`))
	require.NoError(t, err)

	result, err := applier.Apply(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, &Result{PermissionsUpdated: 1, RolesUpdated: 1, SubjectsSynced: 1}, result)

	editor, err := m.Roles().FindByName(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, editor.PermissionCount())

	user := rbac.Subject{Type: "User", ID: "42"}
	roles, err := m.Roles().GetRoles(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, roles)

	allowed, err := m.Checker().HasPermission(ctx, user, rbac.PermissionName("posts.view"))
	require.NoError(t, err)
	assert.True(t, allowed, "now granted directly")

	_, err = m.Roles().FindByName(ctx, "reader")
	assert.NoError(t, err, "roles absent from the file are left alone")
}

func TestApply_UnknownReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("role permission", func(t *testing.T) {
		m := newManager(t)
		file, err := Parse([]byte("roles:\n  - name: r\n    permissions: [ghost]\n"))
		require.NoError(t, err)

		_, err = NewApplier(m, nil).Apply(ctx, file)
		assert.ErrorIs(t, err, rbac.ErrNotFound)
		assert.Equal(t, []string{"ghost"}, rbac.MissingNames(err))
	})

	t.Run("subject role", func(t *testing.T) {
		m := newManager(t)
		file, err := Parse([]byte("subjects:\n  - {type: User, id: '1', roles: [admin, root]}\n"))
		require.NoError(t, err)

		result, err := NewApplier(m, nil).Apply(ctx, file)
		assert.ErrorIs(t, err, rbac.ErrNotFound)
		assert.Equal(t, []string{"admin", "root"}, rbac.MissingNames(err))
		assert.Zero(t, result.SubjectsSynced)
	})

	t.Run("subject permission", func(t *testing.T) {
		m := newManager(t)
		file, err := Parse([]byte("subjects:\n  - {type: User, id: '1', permissions: [ghost]}\n"))
		require.NoError(t, err)

		result, err := NewApplier(m, nil).Apply(ctx, file)
		assert.ErrorIs(t, err, rbac.ErrNotFound)
		assert.Zero(t, result.SubjectsSynced)
	})
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogSeed), 0644))

	result, err := NewApplier(newManager(t), nil).ApplyFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, result.PermissionsCreated)
}

func TestWatcher_ReappliesOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permissions: [a]\n"), 0644))

	m := newManager(t)
	applier := NewApplier(m, nil)
	_, err := applier.ApplyFile(ctx, path)
	require.NoError(t, err)

	w, err := NewWatcher(applier, path, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	reloads := make(chan error, 10)
	w.OnReload(func(_ *Result, err error) { reloads <- err })
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("permissions: [a, b]\n"), 0644))

	select {
	case err := <-reloads:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("seed file was not reloaded")
	}

	_, err = m.Permissions().FindByName(ctx, "b")
	assert.NoError(t, err)
}

func TestWatcher_ReportsInvalidFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permissions: [a]\n"), 0644))

	w, err := NewWatcher(NewApplier(newManager(t), nil), path, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	reloads := make(chan error, 10)
	w.OnReload(func(_ *Result, err error) { reloads <- err })
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("permissions: [a, a]\n"), 0644))

	select {
	case err := <-reloads:
		assert.ErrorContains(t, err, "duplicate permission")
	case <-time.After(5 * time.Second):
		t.Fatal("seed file was not reloaded")
	}
}
