package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/storetest"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite3", URL: ":memory:", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres, nil), mock
}

func TestStoreConformance_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) rbac.Store {
		return newSQLiteStore(t)
	})
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := newSQLiteStore(t)
	defer s.Close()

	applied, err := RunMigrations(context.Background(), s.DB(), s.Dialect())
	require.NoError(t, err)
	assert.Equal(t, 0, applied, "second run must not reapply")

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM rbac_migrations").Scan(&count))
	assert.Equal(t, len(migrations(SQLite)), count)
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	s := newSQLiteStore(t)
	defer s.Close()

	var enabled int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestStore_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = New(db, Postgres, nil).Ping(context.Background())
	assert.True(t, errors.Is(err, rbac.ErrStoreUnavailable), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrorIsStoreUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM rbac_permissions p WHERE p.name = \\$1").
		WithArgs("posts.edit").
		WillReturnError(errors.New("server closed the connection"))

	_, err := s.FindPermissionByName(context.Background(), "posts.edit")
	assert.True(t, errors.Is(err, rbac.ErrStoreUnavailable), "got %v", err)
	assert.False(t, errors.Is(err, rbac.ErrNotFound))

	var storeErr *rbac.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "find_permission_by_name", storeErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UniqueViolationIsDuplicateName(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO rbac_permissions").
		WithArgs("posts.edit", "", now, now).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.SavePermission(context.Background(), &rbac.Permission{Name: "posts.edit", CreatedAt: now, UpdatedAt: now})
	assert.True(t, errors.Is(err, rbac.ErrDuplicateName), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ForeignKeyViolationIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	subject := rbac.Subject{Type: "user", ID: "42"}
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO rbac_subject_roles").
		WithArgs("user", "42", int64(7), now).
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})

	err := s.AddRoleGrant(context.Background(), rbac.RoleGrant{Subject: subject, RoleID: 7, GrantedAt: now})
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)

	var nf *rbac.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, rbac.KindRole, nf.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RemovePermissionRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rbac_role_permissions WHERE permission_id = \\$1").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM rbac_subject_permissions WHERE permission_id = \\$1").
		WithArgs(int64(3)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := s.RemovePermission(context.Background(), 3)
	assert.True(t, errors.Is(err, rbac.ErrStoreUnavailable), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RemoveRoleMissingRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rbac_subject_roles").WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM rbac_role_permissions").WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM rbac_roles").WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RemoveRole(context.Background(), 9)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceRoleGrantsCommits(t *testing.T) {
	s, mock := newMockStore(t)
	subject := rbac.Subject{Type: "user", ID: "1"}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rbac_subject_roles WHERE subject_type = \\$1 AND subject_id = \\$2 AND role_id NOT IN \\(\\$3, \\$4\\)").
		WithArgs("user", "1", int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rbac_subject_roles").WithArgs("user", "1", int64(1), now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO rbac_subject_roles").WithArgs("user", "1", int64(2), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceRoleGrants(context.Background(), subject, []int64{1, 2}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateRoleLeavesPermissionLinks(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE rbac_roles SET name = \\$1, description = \\$2, updated_at = \\$3 WHERE id = \\$4").
		WithArgs("writer", "Writes", now, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	role := rbac.RestoreRole(5, "writer", "Writes", now, now, nil)
	require.NoError(t, s.UpdateRole(context.Background(), role))
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may touch rbac_role_permissions")
}

func TestStore_ChangeRolePermissionsCommits(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rbac_roles SET updated_at = \\$1 WHERE id = \\$2").
		WithArgs(now, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rbac_role_permissions (.+) ON CONFLICT DO NOTHING").
		WithArgs(int64(5), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM rbac_role_permissions WHERE role_id = \\$1 AND permission_id IN \\(\\$2\\)").
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ChangeRolePermissions(context.Background(), 5, []int64{4}, []int64{3}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceRolePermissionsMissingRoleRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rbac_roles SET updated_at").
		WithArgs(now, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.ReplaceRolePermissions(context.Background(), 9, []int64{1}, now)
	assert.True(t, errors.Is(err, rbac.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MigrateFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rbac_migrations").WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	assert.True(t, errors.Is(err, rbac.ErrStoreUnavailable), "got %v", err)
	assert.ErrorContains(t, err, "migrations table")
}
