package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// grantTable describes one of the two subject grant tables
type grantTable struct {
	table  string
	column string
	kind   string
}

var (
	roleGrants       = grantTable{table: "rbac_subject_roles", column: "role_id", kind: kindRoleGrant}
	permissionGrants = grantTable{table: "rbac_subject_permissions", column: "permission_id", kind: kindPermissionGrant}
)

func (s *Store) addGrant(ctx context.Context, op string, g grantTable, subject rbac.Subject, id int64, grantedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO `+g.table+` (subject_type, subject_id, `+g.column+`, granted_at)
			VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`),
		subject.Type, subject.ID, id, utc(grantedAt),
	)
	return mapError(op, g.kind, "", err)
}

func (s *Store) removeGrant(ctx context.Context, op string, g grantTable, subject rbac.Subject, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM `+g.table+` WHERE subject_type = ? AND subject_id = ? AND `+g.column+` = ?`),
		subject.Type, subject.ID, id,
	)
	return rbac.NewStoreError(op, err)
}

func (s *Store) findGrant(ctx context.Context, op string, g grantTable, subject rbac.Subject, id int64) (time.Time, error) {
	var grantedAt time.Time
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT granted_at FROM `+g.table+` WHERE subject_type = ? AND subject_id = ? AND `+g.column+` = ?`),
		subject.Type, subject.ID, id,
	).Scan(&grantedAt)
	if err != nil {
		return time.Time{}, mapError(op, rbac.KindGrant, "", err)
	}
	return utc(grantedAt), nil
}

// replaceGrants drops grants outside ids and inserts the missing ones;
// surviving rows keep their original granted_at
func (s *Store) replaceGrants(ctx context.Context, op string, g grantTable, subject rbac.Subject, ids []int64, grantedAt time.Time) error {
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		query := `DELETE FROM ` + g.table + ` WHERE subject_type = ? AND subject_id = ?`
		args := []interface{}{subject.Type, subject.ID}
		if len(ids) > 0 {
			query += ` AND ` + g.column + ` NOT IN ` + inList(len(ids))
			args = append(args, int64Args(ids)...)
		}
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return rbac.NewStoreError(op, err)
		}

		for _, id := range ids {
			_, err := tx.ExecContext(ctx,
				s.q(`INSERT INTO `+g.table+` (subject_type, subject_id, `+g.column+`, granted_at)
					VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`),
				subject.Type, subject.ID, id, utc(grantedAt),
			)
			if err != nil {
				return mapError(op, g.kind, "", err)
			}
		}
		return nil
	})
}

// AddRoleGrant records that a subject holds a role
func (s *Store) AddRoleGrant(ctx context.Context, grant rbac.RoleGrant) error {
	return s.addGrant(ctx, "add_role_grant", roleGrants, grant.Subject, grant.RoleID, grant.GrantedAt)
}

// RemoveRoleGrant deletes a role grant if present
func (s *Store) RemoveRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) error {
	return s.removeGrant(ctx, "remove_role_grant", roleGrants, subject, roleID)
}

// FindRoleGrant returns the grant of roleID to subject
func (s *Store) FindRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) (*rbac.RoleGrant, error) {
	grantedAt, err := s.findGrant(ctx, "find_role_grant", roleGrants, subject, roleID)
	if err != nil {
		return nil, err
	}
	return &rbac.RoleGrant{Subject: subject, RoleID: roleID, GrantedAt: grantedAt}, nil
}

// ListRoleGrants returns the roles held by subject with their permission sets, ordered by name
func (s *Store) ListRoleGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Role, error) {
	return s.queryRoles(ctx, s.db, "list_role_grants",
		`SELECT `+roleColumns+`
		FROM rbac_roles r
		JOIN rbac_subject_roles sr ON sr.role_id = r.id
		WHERE sr.subject_type = ? AND sr.subject_id = ?
		ORDER BY r.name`,
		subject.Type, subject.ID)
}

// ReplaceRoleGrants sets the subject's role grants to exactly roleIDs
func (s *Store) ReplaceRoleGrants(ctx context.Context, subject rbac.Subject, roleIDs []int64, grantedAt time.Time) error {
	return s.replaceGrants(ctx, "replace_role_grants", roleGrants, subject, roleIDs, grantedAt)
}

// AddPermissionGrant records that a subject holds a permission directly
func (s *Store) AddPermissionGrant(ctx context.Context, grant rbac.PermissionGrant) error {
	return s.addGrant(ctx, "add_permission_grant", permissionGrants, grant.Subject, grant.PermissionID, grant.GrantedAt)
}

// RemovePermissionGrant deletes a direct grant if present
func (s *Store) RemovePermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) error {
	return s.removeGrant(ctx, "remove_permission_grant", permissionGrants, subject, permissionID)
}

// FindPermissionGrant returns the direct grant of permissionID to subject
func (s *Store) FindPermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (*rbac.PermissionGrant, error) {
	grantedAt, err := s.findGrant(ctx, "find_permission_grant", permissionGrants, subject, permissionID)
	if err != nil {
		return nil, err
	}
	return &rbac.PermissionGrant{Subject: subject, PermissionID: permissionID, GrantedAt: grantedAt}, nil
}

// ListPermissionGrants returns the permissions held directly by subject, ordered by name
func (s *Store) ListPermissionGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Permission, error) {
	return s.queryPermissions(ctx, s.db, "list_permission_grants",
		`SELECT `+permissionColumns+`
		FROM rbac_permissions p
		JOIN rbac_subject_permissions sp ON sp.permission_id = p.id
		WHERE sp.subject_type = ? AND sp.subject_id = ?
		ORDER BY p.name`,
		subject.Type, subject.ID)
}

// ReplacePermissionGrants sets the subject's direct grants to exactly permissionIDs
func (s *Store) ReplacePermissionGrants(ctx context.Context, subject rbac.Subject, permissionIDs []int64, grantedAt time.Time) error {
	return s.replaceGrants(ctx, "replace_permission_grants", permissionGrants, subject, permissionIDs, grantedAt)
}
