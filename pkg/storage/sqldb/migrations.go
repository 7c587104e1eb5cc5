package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrations returns the schema history for a dialect
func migrations(d Dialect) []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create RBAC tables",
			Statements: []string{
				d.expand(`CREATE TABLE IF NOT EXISTS rbac_permissions (
					id {serial},
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					created_at {timestamp} NOT NULL,
					updated_at {timestamp} NOT NULL
				)`),
				d.expand(`CREATE TABLE IF NOT EXISTS rbac_roles (
					id {serial},
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					created_at {timestamp} NOT NULL,
					updated_at {timestamp} NOT NULL
				)`),
				`CREATE TABLE IF NOT EXISTS rbac_role_permissions (
					role_id BIGINT NOT NULL REFERENCES rbac_roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES rbac_permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				)`,
				d.expand(`CREATE TABLE IF NOT EXISTS rbac_subject_roles (
					subject_type VARCHAR(255) NOT NULL,
					subject_id VARCHAR(255) NOT NULL,
					role_id BIGINT NOT NULL REFERENCES rbac_roles(id) ON DELETE CASCADE,
					granted_at {timestamp} NOT NULL,
					PRIMARY KEY (subject_type, subject_id, role_id)
				)`),
				d.expand(`CREATE TABLE IF NOT EXISTS rbac_subject_permissions (
					subject_type VARCHAR(255) NOT NULL,
					subject_id VARCHAR(255) NOT NULL,
					permission_id BIGINT NOT NULL REFERENCES rbac_permissions(id) ON DELETE CASCADE,
					granted_at {timestamp} NOT NULL,
					PRIMARY KEY (subject_type, subject_id, permission_id)
				)`),
			},
		},
		{
			Version:     2,
			Description: "Add reverse lookup indexes",
			Statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_rbac_role_permissions_permission ON rbac_role_permissions(permission_id)`,
				`CREATE INDEX IF NOT EXISTS idx_rbac_subject_roles_role ON rbac_subject_roles(role_id)`,
				`CREATE INDEX IF NOT EXISTS idx_rbac_subject_permissions_permission ON rbac_subject_permissions(permission_id)`,
			},
		},
	}
}

// RunMigrations applies all pending migrations, one transaction each
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	_, err := db.ExecContext(ctx, d.expand(`
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at {timestamp} NOT NULL
		)
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	rows.Close()

	count := 0
	for _, migration := range migrations(d) {
		if applied[migration.Version] {
			continue
		}
		if err := applyMigration(ctx, db, d, migration); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func applyMigration(ctx context.Context, db *sql.DB, d Dialect, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range migration.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		d.Rebind("INSERT INTO rbac_migrations (version, description, applied_at) VALUES (?, ?, ?)"),
		migration.Version, migration.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
