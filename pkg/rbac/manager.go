package rbac

import (
	"context"
	"fmt"
)

// Manager wires the services and the checker over a single store
type Manager struct {
	store       Store
	permissions *PermissionService
	roles       *RoleService
	checker     *Checker
	opts        options
}

// NewManager creates a new RBAC manager
func NewManager(store Store, opts ...Option) *Manager {
	permissions := NewPermissionService(store, opts...)
	return &Manager{
		store:       store,
		permissions: permissions,
		roles:       NewRoleService(store, permissions, opts...),
		checker:     NewChecker(store, permissions, opts...),
		opts:        buildOptions(opts),
	}
}

// Initialize prepares the store for use, running schema migrations when the
// store needs them.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach store: %w", err)
	}
	if migrator, ok := m.store.(Migrator); ok {
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		m.opts.logger.Info("rbac migrations applied")
	}
	return nil
}

// Store returns the underlying store
func (m *Manager) Store() Store {
	return m.store
}

// Permissions returns the permission service
func (m *Manager) Permissions() *PermissionService {
	return m.permissions
}

// Roles returns the role service
func (m *Manager) Roles() *RoleService {
	return m.roles
}

// Checker returns the access control checker
func (m *Manager) Checker() *Checker {
	return m.checker
}

// Stats summarizes the contents of the store
type Stats struct {
	TotalPermissions  int `json:"total_permissions"`
	TotalRoles        int `json:"total_roles"`
	EmptyRoles        int `json:"empty_roles"`
	TotalRolePermLink int `json:"total_role_permissions"`
}

// GetStats returns RBAC statistics
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	perms, err := m.permissions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count permissions: %w", err)
	}
	roles, err := m.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count roles: %w", err)
	}

	stats := &Stats{
		TotalPermissions: len(perms),
		TotalRoles:       len(roles),
	}
	for _, r := range roles {
		n := r.PermissionCount()
		if n == 0 {
			stats.EmptyRoles++
		}
		stats.TotalRolePermLink += n
	}
	return stats, nil
}
