package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const roleColumns = "r.id, r.name, r.description, r.created_at, r.updated_at"

// SaveRole inserts or updates a role and rewrites its permission set in one transaction
func (s *Store) SaveRole(ctx context.Context, role *rbac.Role) error {
	const op = "save_role"
	id := role.ID

	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		if id == 0 {
			err := tx.QueryRowContext(ctx,
				s.q(`INSERT INTO rbac_roles (name, description, created_at, updated_at)
					VALUES (?, ?, ?, ?) RETURNING id`),
				role.Name, role.Description, utc(role.CreatedAt), utc(role.UpdatedAt),
			).Scan(&id)
			if err != nil {
				return mapError(op, rbac.KindRole, role.Name, err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				s.q(`UPDATE rbac_roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
				role.Name, role.Description, utc(role.UpdatedAt), id,
			)
			if err != nil {
				return mapError(op, rbac.KindRole, role.Name, err)
			}
			n, err := rowsAffected(op, res)
			if err != nil {
				return err
			}
			if n == 0 {
				return rbac.NewNotFoundError(rbac.KindRole, role.Name)
			}
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_role_permissions WHERE role_id = ?`), id); err != nil {
				return rbac.NewStoreError(op, err)
			}
		}

		for _, permissionID := range role.PermissionIDs() {
			_, err := tx.ExecContext(ctx,
				s.q(`INSERT INTO rbac_role_permissions (role_id, permission_id) VALUES (?, ?)`),
				id, permissionID,
			)
			if err != nil {
				return mapError(op, kindRolePermission, "", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	role.ID = id
	return nil
}

// UpdateRole rewrites a role's name, description and update time. The
// permission links are left as stored.
func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	const op = "update_role"
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE rbac_roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
		role.Name, role.Description, utc(role.UpdatedAt), role.ID,
	)
	if err != nil {
		return mapError(op, rbac.KindRole, role.Name, err)
	}
	n, err := rowsAffected(op, res)
	if err != nil {
		return err
	}
	if n == 0 {
		return rbac.NewNotFoundError(rbac.KindRole, role.Name)
	}
	return nil
}

// ChangeRolePermissions inserts the add links and then deletes the remove
// links of one role in a single transaction
func (s *Store) ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) error {
	const op = "change_role_permissions"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := s.touchRole(ctx, tx, op, roleID, updatedAt); err != nil {
			return err
		}
		if err := s.linkPermissions(ctx, tx, op, roleID, add); err != nil {
			return err
		}
		if len(remove) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			s.q(`DELETE FROM rbac_role_permissions WHERE role_id = ? AND permission_id IN `+inList(len(remove))),
			append([]interface{}{roleID}, int64Args(remove)...)...,
		)
		if err != nil {
			return rbac.NewStoreError(op, err)
		}
		return nil
	})
}

// ReplaceRolePermissions drops the links outside permissionIDs and inserts the
// missing ones in a single transaction
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) error {
	const op = "replace_role_permissions"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := s.touchRole(ctx, tx, op, roleID, updatedAt); err != nil {
			return err
		}
		query := `DELETE FROM rbac_role_permissions WHERE role_id = ?`
		args := []interface{}{roleID}
		if len(permissionIDs) > 0 {
			query += ` AND permission_id NOT IN ` + inList(len(permissionIDs))
			args = append(args, int64Args(permissionIDs)...)
		}
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return rbac.NewStoreError(op, err)
		}
		return s.linkPermissions(ctx, tx, op, roleID, permissionIDs)
	})
}

// touchRole stamps updated_at first so concurrent writers to the same role
// queue on its row
func (s *Store) touchRole(ctx context.Context, tx *sql.Tx, op string, roleID int64, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, s.q(`UPDATE rbac_roles SET updated_at = ? WHERE id = ?`), utc(updatedAt), roleID)
	if err != nil {
		return rbac.NewStoreError(op, err)
	}
	n, err := rowsAffected(op, res)
	if err != nil {
		return err
	}
	if n == 0 {
		return rbac.NewNotFoundError(rbac.KindRole)
	}
	return nil
}

func (s *Store) linkPermissions(ctx context.Context, tx *sql.Tx, op string, roleID int64, permissionIDs []int64) error {
	for _, permissionID := range permissionIDs {
		_, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO rbac_role_permissions (role_id, permission_id) VALUES (?, ?) ON CONFLICT DO NOTHING`),
			roleID, permissionID,
		)
		if err != nil {
			return mapError(op, kindRolePermission, "", err)
		}
	}
	return nil
}

// RemoveRole deletes a role along with its permission links and subject grants
func (s *Store) RemoveRole(ctx context.Context, id int64) error {
	const op = "remove_role"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_subject_roles WHERE role_id = ?`), id); err != nil {
			return rbac.NewStoreError(op, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_role_permissions WHERE role_id = ?`), id); err != nil {
			return rbac.NewStoreError(op, err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_roles WHERE id = ?`), id)
		if err != nil {
			return rbac.NewStoreError(op, err)
		}
		n, err := rowsAffected(op, res)
		if err != nil {
			return err
		}
		if n == 0 {
			return rbac.NewNotFoundError(rbac.KindRole)
		}
		return nil
	})
}

// FindRoleByName looks up a role by exact name
func (s *Store) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	roles, err := s.queryRoles(ctx, s.db, "find_role_by_name",
		`SELECT `+roleColumns+` FROM rbac_roles r WHERE r.name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindRole, name)
	}
	return roles[0], nil
}

// FindRolesByNames returns the roles whose names are in names, ordered by name
func (s *Store) FindRolesByNames(ctx context.Context, names []string) ([]*rbac.Role, error) {
	names = uniqueStrings(names)
	if len(names) == 0 {
		return []*rbac.Role{}, nil
	}
	return s.queryRoles(ctx, s.db, "find_roles_by_names",
		`SELECT `+roleColumns+` FROM rbac_roles r WHERE r.name IN `+inList(len(names))+` ORDER BY r.name`,
		stringArgs(names)...)
}

// FindRoleByID looks up a role by id
func (s *Store) FindRoleByID(ctx context.Context, id int64) (*rbac.Role, error) {
	roles, err := s.queryRoles(ctx, s.db, "find_role_by_id",
		`SELECT `+roleColumns+` FROM rbac_roles r WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindRole)
	}
	return roles[0], nil
}

// ListRoles returns every role ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	return s.queryRoles(ctx, s.db, "list_roles",
		`SELECT `+roleColumns+` FROM rbac_roles r ORDER BY r.name`)
}

type roleRow struct {
	id          int64
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// queryRoles loads role rows, then their permission sets in a second query.
// The first result set is fully drained before the second query runs.
func (s *Store) queryRoles(ctx context.Context, q queryer, op, query string, args ...interface{}) ([]*rbac.Role, error) {
	rows, err := q.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}

	var loaded []roleRow
	for rows.Next() {
		var r roleRow
		if err := rows.Scan(&r.id, &r.name, &r.description, &r.createdAt, &r.updatedAt); err != nil {
			rows.Close()
			return nil, rbac.NewStoreError(op, err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, rbac.NewStoreError(op, err)
	}
	rows.Close()

	roles := make([]*rbac.Role, 0, len(loaded))
	if len(loaded) == 0 {
		return roles, nil
	}

	ids := make([]int64, len(loaded))
	for i, r := range loaded {
		ids[i] = r.id
	}
	members, err := s.rolePermissions(ctx, q, op, ids)
	if err != nil {
		return nil, err
	}

	for _, r := range loaded {
		roles = append(roles, rbac.RestoreRole(r.id, r.name, r.description,
			utc(r.createdAt), utc(r.updatedAt), members[r.id]))
	}
	return roles, nil
}

func (s *Store) rolePermissions(ctx context.Context, q queryer, op string, roleIDs []int64) (map[int64][]rbac.Permission, error) {
	rows, err := q.QueryContext(ctx, s.q(
		`SELECT rp.role_id, `+permissionColumns+`
		FROM rbac_role_permissions rp
		JOIN rbac_permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN `+inList(len(roleIDs))),
		int64Args(roleIDs)...,
	)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	defer rows.Close()

	members := make(map[int64][]rbac.Permission, len(roleIDs))
	for rows.Next() {
		var roleID int64
		var p rbac.Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, rbac.NewStoreError(op, err)
		}
		p.CreatedAt = utc(p.CreatedAt)
		p.UpdatedAt = utc(p.UpdatedAt)
		members[roleID] = append(members[roleID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return members, nil
}
