package seed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/async"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const (
	defaultWorkers        = 4
	defaultSubjectTimeout = 30 * time.Second
)

// Result counts what an Apply call changed
type Result struct {
	PermissionsCreated int `json:"permissions_created"`
	PermissionsUpdated int `json:"permissions_updated"`
	RolesCreated       int `json:"roles_created"`
	RolesUpdated       int `json:"roles_updated"`
	SubjectsSynced     int `json:"subjects_synced"`
}

// Applier reconciles the store with a seed file through the rbac services.
// Applying the same file twice leaves the store unchanged.
type Applier struct {
	permissions *rbac.PermissionService
	roles       *rbac.RoleService
	logger      *observability.Logger
	workers     int
}

// NewApplier creates an applier over the manager's services
func NewApplier(manager *rbac.Manager, logger *observability.Logger) *Applier {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Applier{
		permissions: manager.Permissions(),
		roles:       manager.Roles(),
		logger:      logger,
		workers:     defaultWorkers,
	}
}

// ApplyFile loads path and applies it
func (a *Applier) ApplyFile(ctx context.Context, path string) (*Result, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}
	return a.Apply(ctx, file)
}

// Apply creates missing permissions and roles, updates changed descriptions,
// and replaces role permission sets and subject grants with what the file
// declares. Permissions and roles are applied in order; subjects are synced
// concurrently once every role they reference is known to exist.
func (a *Applier) Apply(ctx context.Context, file *File) (*Result, error) {
	if err := file.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, p := range file.Permissions {
		if err := a.applyPermission(ctx, p, result); err != nil {
			return result, err
		}
	}
	for _, r := range file.Roles {
		if err := a.applyRole(ctx, r, result); err != nil {
			return result, err
		}
	}
	if err := a.checkSubjectRoles(ctx, file.Subjects); err != nil {
		return result, err
	}

	errs := async.Batch(observability.WithLogger(ctx, a.logger), file.Subjects, a.workers, "seed subjects", defaultSubjectTimeout,
		func(ctx context.Context, s SubjectSeed) error {
			return a.applySubject(ctx, s)
		})
	result.SubjectsSynced = len(file.Subjects) - len(errs)
	if len(errs) > 0 {
		return result, fmt.Errorf("failed to sync %d subjects: %w", len(errs), errors.Join(errs...))
	}

	a.logger.WithFields(map[string]interface{}{
		"permissions_created": result.PermissionsCreated,
		"permissions_updated": result.PermissionsUpdated,
		"roles_created":       result.RolesCreated,
		"roles_updated":       result.RolesUpdated,
		"subjects_synced":     result.SubjectsSynced,
	}).Info("seed applied")
	return result, nil
}

func (a *Applier) applyPermission(ctx context.Context, p PermissionSeed, result *Result) error {
	existing, err := a.permissions.FindByName(ctx, p.Name)
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		if _, err := a.permissions.Create(ctx, p.Name, p.Description); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
		result.PermissionsCreated++
		return nil
	case err != nil:
		return err
	}

	if existing.Description == p.Description {
		return nil
	}
	if _, err := a.permissions.Update(ctx, existing, existing.Name, p.Description); err != nil {
		return fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
	}
	result.PermissionsUpdated++
	return nil
}

func (a *Applier) applyRole(ctx context.Context, r RoleSeed, result *Result) error {
	role, err := a.roles.FindByName(ctx, r.Name)
	created, updated := false, false
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		role, err = a.roles.Create(ctx, r.Name, r.Description)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
		created = true
	case err != nil:
		return err
	case role.Description != r.Description:
		role, err = a.roles.Update(ctx, role, role.Name, r.Description)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
		updated = true
	}

	before := role.PermissionIDs()
	if err := a.roles.SyncPermissions(ctx, role, rbac.Names(r.Permissions...)); err != nil {
		return fmt.Errorf("failed to seed permissions of role %s: %w", r.Name, err)
	}
	switch {
	case created:
		result.RolesCreated++
	case updated, !slices.Equal(before, role.PermissionIDs()):
		result.RolesUpdated++
	}
	return nil
}

// checkSubjectRoles fails when a subject references a role that does not
// exist, since SyncRoles would otherwise drop it silently.
func (a *Applier) checkSubjectRoles(ctx context.Context, subjects []SubjectSeed) error {
	seen := make(map[string]bool)
	var names []string
	for _, s := range subjects {
		for _, name := range s.Roles {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	found, err := a.roles.FindByNames(ctx, names)
	if err != nil {
		return err
	}
	exists := make(map[string]bool, len(found))
	for _, r := range found {
		exists[r.Name] = true
	}
	var missing []string
	for _, name := range names {
		if !exists[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return rbac.NewNotFoundError(rbac.KindRole, missing...)
	}
	return nil
}

func (a *Applier) applySubject(ctx context.Context, s SubjectSeed) error {
	subject := s.Subject()
	if err := a.roles.SyncRoles(ctx, subject, s.Roles); err != nil {
		return fmt.Errorf("subject %s: %w", subject, err)
	}
	if err := a.permissions.SyncPermissionsTo(ctx, subject, rbac.Names(s.Permissions...)); err != nil {
		return fmt.Errorf("subject %s: %w", subject, err)
	}
	return nil
}
