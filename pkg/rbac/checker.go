package rbac

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Checker operation names reported to the CheckObserver
const (
	OpHasPermission        = "has_permission"
	OpHasPermissionViaRole = "has_permission_via_role"
	OpHasAnyPermission     = "has_any_permission"
	OpHasAllPermissions    = "has_all_permissions"
)

// Checker answers permission checks for subjects by combining direct grants
// with permissions inherited through roles. It keeps no state between calls.
type Checker struct {
	store       GrantStore
	permissions *PermissionService
	opts        options
}

// NewChecker creates a new checker
func NewChecker(store GrantStore, permissions *PermissionService, opts ...Option) *Checker {
	return &Checker{
		store:       store,
		permissions: permissions,
		opts:        buildOptions(opts),
	}
}

// HasPermission reports whether the subject holds the permission directly or
// through any of its roles. An unknown permission name is an error, not a denial.
func (c *Checker) HasPermission(ctx context.Context, subject Subject, ref PermissionRef) (bool, error) {
	return c.run(ctx, OpHasPermission, subject, 1, func(ctx context.Context) (bool, error) {
		perm, err := c.permissions.Resolve(ctx, ref)
		if err != nil {
			return false, err
		}
		e := &evaluation{store: c.store, subject: subject}
		return e.allows(ctx, perm)
	})
}

// HasPermissionViaRole reports whether any of the subject's roles carries the
// permission. Direct grants are ignored.
func (c *Checker) HasPermissionViaRole(ctx context.Context, subject Subject, ref PermissionRef) (bool, error) {
	return c.run(ctx, OpHasPermissionViaRole, subject, 1, func(ctx context.Context) (bool, error) {
		perm, err := c.permissions.Resolve(ctx, ref)
		if err != nil {
			return false, err
		}
		e := &evaluation{store: c.store, subject: subject}
		return e.viaRole(ctx, perm)
	})
}

// HasAnyPermission reports whether the subject holds at least one of refs.
// Every reference is resolved before evaluation starts. An empty list is false.
func (c *Checker) HasAnyPermission(ctx context.Context, subject Subject, refs []PermissionRef) (bool, error) {
	return c.run(ctx, OpHasAnyPermission, subject, len(refs), func(ctx context.Context) (bool, error) {
		perms, err := c.permissions.ResolveAll(ctx, refs)
		if err != nil {
			return false, err
		}
		e := &evaluation{store: c.store, subject: subject}
		for _, perm := range perms {
			ok, err := e.allows(ctx, perm)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})
}

// HasAllPermissions reports whether the subject holds every one of refs.
// An empty list is vacuously true.
func (c *Checker) HasAllPermissions(ctx context.Context, subject Subject, refs []PermissionRef) (bool, error) {
	return c.run(ctx, OpHasAllPermissions, subject, len(refs), func(ctx context.Context) (bool, error) {
		perms, err := c.permissions.ResolveAll(ctx, refs)
		if err != nil {
			return false, err
		}
		e := &evaluation{store: c.store, subject: subject}
		for _, perm := range perms {
			ok, err := e.allows(ctx, perm)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// EffectivePermissions returns the union of the subject's direct and
// role-derived permissions, ordered by name.
func (c *Checker) EffectivePermissions(ctx context.Context, subject Subject) ([]Permission, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.opts.tracer.Start(ctx, "rbac.EffectivePermissions",
		trace.WithAttributes(attribute.String("subject.type", subject.Type)))
	defer span.End()

	direct, err := c.store.ListPermissionGrants(ctx, subject)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	roles, err := c.store.ListRoleGrants(ctx, subject)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	union := make(map[int64]Permission)
	for _, p := range direct {
		union[p.ID] = *p
	}
	for _, r := range roles {
		for _, p := range r.Permissions() {
			union[p.ID] = p
		}
	}

	perms := make([]Permission, 0, len(union))
	for _, p := range union {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	span.SetAttributes(attribute.Int("permissions.count", len(perms)))
	return perms, nil
}

func (c *Checker) run(ctx context.Context, op string, subject Subject, n int, fn func(context.Context) (bool, error)) (bool, error) {
	start := c.opts.now()
	ctx, span := c.opts.tracer.Start(ctx, "rbac.Checker/"+op,
		trace.WithAttributes(
			attribute.String("subject.type", subject.Type),
			attribute.Int("permissions.count", n),
		))
	defer span.End()

	var (
		allowed bool
		err     error
	)
	if err = subject.Validate(); err == nil {
		allowed, err = fn(ctx)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		allowed = false
	}
	span.SetAttributes(attribute.Bool("allowed", allowed))

	if c.opts.observer != nil {
		c.opts.observer.ObserveCheck(op, allowed, err, c.opts.now().Sub(start))
	}
	log := c.opts.logger.WithSubject(subject).WithDecision(op, allowed)
	if err != nil {
		log.WithError(err).Debug("permission check failed")
	} else {
		log.Debug("permission check evaluated")
	}
	return allowed, err
}

// evaluation memoizes the subject's direct grants and role grants for the
// duration of one call, so each is read at most once however many
// permissions are checked
type evaluation struct {
	store        GrantStore
	subject      Subject
	direct       map[int64]bool
	directLoaded bool
	roles        []*Role
	rolesLoaded  bool
}

func (e *evaluation) allows(ctx context.Context, perm *Permission) (bool, error) {
	if !e.directLoaded {
		perms, err := e.store.ListPermissionGrants(ctx, e.subject)
		if err != nil {
			return false, err
		}
		e.direct = make(map[int64]bool, len(perms))
		for _, p := range perms {
			e.direct[p.ID] = true
		}
		e.directLoaded = true
	}
	if e.direct[perm.ID] {
		return true, nil
	}
	return e.viaRole(ctx, perm)
}

func (e *evaluation) viaRole(ctx context.Context, perm *Permission) (bool, error) {
	if !e.rolesLoaded {
		roles, err := e.store.ListRoleGrants(ctx, e.subject)
		if err != nil {
			return false, err
		}
		e.roles = roles
		e.rolesLoaded = true
	}
	for _, role := range e.roles {
		if role.HasPermission(perm.ID) {
			return true, nil
		}
	}
	return false, nil
}
