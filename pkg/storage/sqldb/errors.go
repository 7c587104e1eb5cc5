package sqldb

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isUniqueViolation reports whether err is a unique constraint failure in either engine
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isForeignKeyViolation reports whether err is a foreign key failure in either engine
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// mapError translates driver errors into rbac errors. kind and name describe
// the entity being written and are used for constraint violations.
func mapError(op, kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rbac.ErrNotFound), errors.Is(err, rbac.ErrDuplicateName):
		return err
	case errors.Is(err, sql.ErrNoRows):
		if name == "" {
			return rbac.NewNotFoundError(kind)
		}
		return rbac.NewNotFoundError(kind, name)
	case isUniqueViolation(err):
		return &rbac.DuplicateNameError{Kind: kind, Name: name}
	case isForeignKeyViolation(err):
		return rbac.NewNotFoundError(referencedKind(kind))
	default:
		return rbac.NewStoreError(op, err)
	}
}

// referencedKind names what a foreign key on kind points at
func referencedKind(kind string) string {
	switch kind {
	case kindRolePermission:
		return rbac.KindPermission
	case kindRoleGrant:
		return rbac.KindRole
	case kindPermissionGrant:
		return rbac.KindPermission
	default:
		return kind
	}
}

const (
	kindRolePermission  = "role_permission"
	kindRoleGrant       = "role_grant"
	kindPermissionGrant = "permission_grant"
)
