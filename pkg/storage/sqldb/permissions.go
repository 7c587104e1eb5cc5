package sqldb

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const permissionColumns = "p.id, p.name, p.description, p.created_at, p.updated_at"

// SavePermission inserts or updates a permission
func (s *Store) SavePermission(ctx context.Context, perm *rbac.Permission) error {
	if perm.ID == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx,
			s.q(`INSERT INTO rbac_permissions (name, description, created_at, updated_at)
				VALUES (?, ?, ?, ?) RETURNING id`),
			perm.Name, perm.Description, utc(perm.CreatedAt), utc(perm.UpdatedAt),
		).Scan(&id)
		if err != nil {
			return mapError("save_permission", rbac.KindPermission, perm.Name, err)
		}
		perm.ID = id
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE rbac_permissions SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
		perm.Name, perm.Description, utc(perm.UpdatedAt), perm.ID,
	)
	if err != nil {
		return mapError("save_permission", rbac.KindPermission, perm.Name, err)
	}
	n, err := rowsAffected("save_permission", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return rbac.NewNotFoundError(rbac.KindPermission, perm.Name)
	}
	return nil
}

// RemovePermission deletes a permission along with its role memberships and direct grants
func (s *Store) RemovePermission(ctx context.Context, id int64) error {
	const op = "remove_permission"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_role_permissions WHERE permission_id = ?`), id); err != nil {
			return rbac.NewStoreError(op, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_subject_permissions WHERE permission_id = ?`), id); err != nil {
			return rbac.NewStoreError(op, err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM rbac_permissions WHERE id = ?`), id)
		if err != nil {
			return rbac.NewStoreError(op, err)
		}
		n, err := rowsAffected(op, res)
		if err != nil {
			return err
		}
		if n == 0 {
			return rbac.NewNotFoundError(rbac.KindPermission)
		}
		return nil
	})
}

// FindPermissionByName looks up a permission by exact name
func (s *Store) FindPermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+permissionColumns+` FROM rbac_permissions p WHERE p.name = ?`), name)
	perm, err := scanPermission(row)
	if err != nil {
		return nil, mapError("find_permission_by_name", rbac.KindPermission, name, err)
	}
	return perm, nil
}

// FindPermissionsByNames returns the permissions whose names are in names, ordered by name
func (s *Store) FindPermissionsByNames(ctx context.Context, names []string) ([]*rbac.Permission, error) {
	names = uniqueStrings(names)
	if len(names) == 0 {
		return []*rbac.Permission{}, nil
	}
	return s.queryPermissions(ctx, s.db, "find_permissions_by_names",
		`SELECT `+permissionColumns+` FROM rbac_permissions p WHERE p.name IN `+inList(len(names))+` ORDER BY p.name`,
		stringArgs(names)...)
}

// FindPermissionByID looks up a permission by id
func (s *Store) FindPermissionByID(ctx context.Context, id int64) (*rbac.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+permissionColumns+` FROM rbac_permissions p WHERE p.id = ?`), id)
	perm, err := scanPermission(row)
	if err != nil {
		return nil, mapError("find_permission_by_id", rbac.KindPermission, "", err)
	}
	return perm, nil
}

// ListPermissions returns every permission ordered by name
func (s *Store) ListPermissions(ctx context.Context) ([]*rbac.Permission, error) {
	return s.queryPermissions(ctx, s.db, "list_permissions",
		`SELECT `+permissionColumns+` FROM rbac_permissions p ORDER BY p.name`)
}

func (s *Store) queryPermissions(ctx context.Context, q queryer, op, query string, args ...interface{}) ([]*rbac.Permission, error) {
	rows, err := q.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	defer rows.Close()

	perms := make([]*rbac.Permission, 0)
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, rbac.NewStoreError(op, err)
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return perms, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPermission(row scanner) (*rbac.Permission, error) {
	var perm rbac.Permission
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return nil, err
	}
	perm.CreatedAt = utc(perm.CreatedAt)
	perm.UpdatedAt = utc(perm.UpdatedAt)
	return &perm, nil
}
