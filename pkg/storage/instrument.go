package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const tracerName = "github.com/platinummonkey/gatekeeper/pkg/storage"

// Error types reported to the StorageObserver
const (
	ErrorTypeNotFound    = "not_found"
	ErrorTypeDuplicate   = "duplicate_name"
	ErrorTypeConflict    = "conflict"
	ErrorTypeUnavailable = "store_unavailable"
	ErrorTypeCanceled    = "canceled"
	ErrorTypeOther       = "other"
)

// ErrorType classifies err for metrics labels. A nil error yields "".
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCanceled
	case errors.Is(err, rbac.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, rbac.ErrDuplicateName):
		return ErrorTypeDuplicate
	case errors.Is(err, rbac.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, rbac.ErrStoreUnavailable):
		return ErrorTypeUnavailable
	default:
		return ErrorTypeOther
	}
}

// InstrumentedStore decorates an rbac.Store with a span and an observer
// callback per call
type InstrumentedStore struct {
	next     rbac.Store
	backend  string
	observer observability.StorageObserver
	tracer   trace.Tracer
}

var (
	_ rbac.Store    = (*InstrumentedStore)(nil)
	_ rbac.Migrator = (*InstrumentedStore)(nil)
)

// Instrument wraps next. observer may be nil.
func Instrument(next rbac.Store, backend string, observer observability.StorageObserver) *InstrumentedStore {
	return &InstrumentedStore{
		next:     next,
		backend:  backend,
		observer: observer,
		tracer:   otel.Tracer(tracerName),
	}
}

// Unwrap returns the decorated store
func (s *InstrumentedStore) Unwrap() rbac.Store {
	return s.next
}

func (s *InstrumentedStore) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "rbac.Store/"+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.backend),
			attribute.String("rbac.store.op", op),
		),
	)
	return ctx, func(err error) {
		errType := ErrorType(err)
		if errType != "" {
			span.SetAttributes(attribute.String("rbac.store.error_type", errType))
			if errType != ErrorTypeNotFound {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveStorageOperation(op, s.backend, errType, time.Since(start))
		}
	}
}

// Migrate forwards to the decorated store when it supports migrations
func (s *InstrumentedStore) Migrate(ctx context.Context) (err error) {
	m, ok := s.next.(rbac.Migrator)
	if !ok {
		return nil
	}
	ctx, done := s.begin(ctx, "migrate")
	defer func() { done(err) }()
	return m.Migrate(ctx)
}

func (s *InstrumentedStore) Ping(ctx context.Context) (err error) {
	ctx, done := s.begin(ctx, "ping")
	defer func() { done(err) }()
	return s.next.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

func (s *InstrumentedStore) SavePermission(ctx context.Context, perm *rbac.Permission) (err error) {
	ctx, done := s.begin(ctx, "save_permission")
	defer func() { done(err) }()
	return s.next.SavePermission(ctx, perm)
}

func (s *InstrumentedStore) RemovePermission(ctx context.Context, id int64) (err error) {
	ctx, done := s.begin(ctx, "remove_permission")
	defer func() { done(err) }()
	return s.next.RemovePermission(ctx, id)
}

func (s *InstrumentedStore) FindPermissionByName(ctx context.Context, name string) (_ *rbac.Permission, err error) {
	ctx, done := s.begin(ctx, "find_permission_by_name")
	defer func() { done(err) }()
	return s.next.FindPermissionByName(ctx, name)
}

func (s *InstrumentedStore) FindPermissionsByNames(ctx context.Context, names []string) (_ []*rbac.Permission, err error) {
	ctx, done := s.begin(ctx, "find_permissions_by_names")
	defer func() { done(err) }()
	return s.next.FindPermissionsByNames(ctx, names)
}

func (s *InstrumentedStore) FindPermissionByID(ctx context.Context, id int64) (_ *rbac.Permission, err error) {
	ctx, done := s.begin(ctx, "find_permission_by_id")
	defer func() { done(err) }()
	return s.next.FindPermissionByID(ctx, id)
}

func (s *InstrumentedStore) ListPermissions(ctx context.Context) (_ []*rbac.Permission, err error) {
	ctx, done := s.begin(ctx, "list_permissions")
	defer func() { done(err) }()
	return s.next.ListPermissions(ctx)
}

func (s *InstrumentedStore) SaveRole(ctx context.Context, role *rbac.Role) (err error) {
	ctx, done := s.begin(ctx, "save_role")
	defer func() { done(err) }()
	return s.next.SaveRole(ctx, role)
}

func (s *InstrumentedStore) UpdateRole(ctx context.Context, role *rbac.Role) (err error) {
	ctx, done := s.begin(ctx, "update_role")
	defer func() { done(err) }()
	return s.next.UpdateRole(ctx, role)
}

func (s *InstrumentedStore) ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) (err error) {
	ctx, done := s.begin(ctx, "change_role_permissions")
	defer func() { done(err) }()
	return s.next.ChangeRolePermissions(ctx, roleID, add, remove, updatedAt)
}

func (s *InstrumentedStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) (err error) {
	ctx, done := s.begin(ctx, "replace_role_permissions")
	defer func() { done(err) }()
	return s.next.ReplaceRolePermissions(ctx, roleID, permissionIDs, updatedAt)
}

func (s *InstrumentedStore) RemoveRole(ctx context.Context, id int64) (err error) {
	ctx, done := s.begin(ctx, "remove_role")
	defer func() { done(err) }()
	return s.next.RemoveRole(ctx, id)
}

func (s *InstrumentedStore) FindRoleByName(ctx context.Context, name string) (_ *rbac.Role, err error) {
	ctx, done := s.begin(ctx, "find_role_by_name")
	defer func() { done(err) }()
	return s.next.FindRoleByName(ctx, name)
}

func (s *InstrumentedStore) FindRolesByNames(ctx context.Context, names []string) (_ []*rbac.Role, err error) {
	ctx, done := s.begin(ctx, "find_roles_by_names")
	defer func() { done(err) }()
	return s.next.FindRolesByNames(ctx, names)
}

func (s *InstrumentedStore) FindRoleByID(ctx context.Context, id int64) (_ *rbac.Role, err error) {
	ctx, done := s.begin(ctx, "find_role_by_id")
	defer func() { done(err) }()
	return s.next.FindRoleByID(ctx, id)
}

func (s *InstrumentedStore) ListRoles(ctx context.Context) (_ []*rbac.Role, err error) {
	ctx, done := s.begin(ctx, "list_roles")
	defer func() { done(err) }()
	return s.next.ListRoles(ctx)
}

func (s *InstrumentedStore) AddRoleGrant(ctx context.Context, grant rbac.RoleGrant) (err error) {
	ctx, done := s.begin(ctx, "add_role_grant")
	defer func() { done(err) }()
	return s.next.AddRoleGrant(ctx, grant)
}

func (s *InstrumentedStore) RemoveRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) (err error) {
	ctx, done := s.begin(ctx, "remove_role_grant")
	defer func() { done(err) }()
	return s.next.RemoveRoleGrant(ctx, subject, roleID)
}

func (s *InstrumentedStore) FindRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) (_ *rbac.RoleGrant, err error) {
	ctx, done := s.begin(ctx, "find_role_grant")
	defer func() { done(err) }()
	return s.next.FindRoleGrant(ctx, subject, roleID)
}

func (s *InstrumentedStore) ListRoleGrants(ctx context.Context, subject rbac.Subject) (_ []*rbac.Role, err error) {
	ctx, done := s.begin(ctx, "list_role_grants")
	defer func() { done(err) }()
	return s.next.ListRoleGrants(ctx, subject)
}

func (s *InstrumentedStore) ReplaceRoleGrants(ctx context.Context, subject rbac.Subject, roleIDs []int64, grantedAt time.Time) (err error) {
	ctx, done := s.begin(ctx, "replace_role_grants")
	defer func() { done(err) }()
	return s.next.ReplaceRoleGrants(ctx, subject, roleIDs, grantedAt)
}

func (s *InstrumentedStore) AddPermissionGrant(ctx context.Context, grant rbac.PermissionGrant) (err error) {
	ctx, done := s.begin(ctx, "add_permission_grant")
	defer func() { done(err) }()
	return s.next.AddPermissionGrant(ctx, grant)
}

func (s *InstrumentedStore) RemovePermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (err error) {
	ctx, done := s.begin(ctx, "remove_permission_grant")
	defer func() { done(err) }()
	return s.next.RemovePermissionGrant(ctx, subject, permissionID)
}

func (s *InstrumentedStore) FindPermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (_ *rbac.PermissionGrant, err error) {
	ctx, done := s.begin(ctx, "find_permission_grant")
	defer func() { done(err) }()
	return s.next.FindPermissionGrant(ctx, subject, permissionID)
}

func (s *InstrumentedStore) ListPermissionGrants(ctx context.Context, subject rbac.Subject) (_ []*rbac.Permission, err error) {
	ctx, done := s.begin(ctx, "list_permission_grants")
	defer func() { done(err) }()
	return s.next.ListPermissionGrants(ctx, subject)
}

func (s *InstrumentedStore) ReplacePermissionGrants(ctx context.Context, subject rbac.Subject, permissionIDs []int64, grantedAt time.Time) (err error) {
	ctx, done := s.begin(ctx, "replace_permission_grants")
	defer func() { done(err) }()
	return s.next.ReplacePermissionGrants(ctx, subject, permissionIDs, grantedAt)
}
