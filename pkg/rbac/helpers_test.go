package rbac_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
)

var errBackendDown = errors.New("backend down")

// clock is a manually advanced time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 15, 9, 30, 0, 123456789, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyStore counts selected calls and can fail them on demand
type spyStore struct {
	rbac.Store

	mu                   sync.Mutex
	listRoleGrants       int
	listPermissionGrants int
	findPermissionGrant  int
	failRoleGrants       bool
	failRoleWrites       bool
	failFindByNames      bool
}

func (s *spyStore) ListRoleGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Role, error) {
	s.mu.Lock()
	s.listRoleGrants++
	fail := s.failRoleGrants
	s.mu.Unlock()
	if fail {
		return nil, rbac.NewStoreError("list_role_grants", errBackendDown)
	}
	return s.Store.ListRoleGrants(ctx, subject)
}

func (s *spyStore) ListPermissionGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Permission, error) {
	s.mu.Lock()
	s.listPermissionGrants++
	s.mu.Unlock()
	return s.Store.ListPermissionGrants(ctx, subject)
}

func (s *spyStore) FindPermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (*rbac.PermissionGrant, error) {
	s.mu.Lock()
	s.findPermissionGrant++
	s.mu.Unlock()
	return s.Store.FindPermissionGrant(ctx, subject, permissionID)
}

func (s *spyStore) roleWriteErr(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRoleWrites {
		return rbac.NewStoreError(op, errBackendDown)
	}
	return nil
}

func (s *spyStore) UpdateRole(ctx context.Context, role *rbac.Role) error {
	if err := s.roleWriteErr("update_role"); err != nil {
		return err
	}
	return s.Store.UpdateRole(ctx, role)
}

func (s *spyStore) ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) error {
	if err := s.roleWriteErr("change_role_permissions"); err != nil {
		return err
	}
	return s.Store.ChangeRolePermissions(ctx, roleID, add, remove, updatedAt)
}

func (s *spyStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) error {
	if err := s.roleWriteErr("replace_role_permissions"); err != nil {
		return err
	}
	return s.Store.ReplaceRolePermissions(ctx, roleID, permissionIDs, updatedAt)
}

func (s *spyStore) FindPermissionsByNames(ctx context.Context, names []string) ([]*rbac.Permission, error) {
	s.mu.Lock()
	fail := s.failFindByNames
	s.mu.Unlock()
	if fail {
		return nil, rbac.NewStoreError("find_permissions_by_names", errBackendDown)
	}
	return s.Store.FindPermissionsByNames(ctx, names)
}

func (s *spyStore) roleGrantLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRoleGrants
}

// directGrantLookups returns how many times direct grants were read, by list and by single lookup
func (s *spyStore) directGrantLookups() (list, find int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPermissionGrants, s.findPermissionGrant
}

type checkCall struct {
	op      string
	allowed bool
	err     error
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []checkCall
}

func (r *recordingObserver) ObserveCheck(op string, allowed bool, err error, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, checkCall{op: op, allowed: allowed, err: err})
}

func (r *recordingObserver) last() checkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// fixture wires the services over an in-memory store
type fixture struct {
	store    *spyStore
	clock    *clock
	observer *recordingObserver
	manager  *rbac.Manager
	perms    *rbac.PermissionService
	roles    *rbac.RoleService
	checker  *rbac.Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &spyStore{Store: memory.New()},
		clock:    newClock(),
		observer: &recordingObserver{},
	}
	f.manager = rbac.NewManager(f.store,
		rbac.WithClock(f.clock.Now),
		rbac.WithCheckObserver(f.observer),
	)
	f.perms = f.manager.Permissions()
	f.roles = f.manager.Roles()
	f.checker = f.manager.Checker()
	return f
}

func (f *fixture) permission(t *testing.T, name string) *rbac.Permission {
	t.Helper()
	p, err := f.perms.Create(context.Background(), name, "")
	if err != nil {
		t.Fatalf("create permission %s: %v", name, err)
	}
	return p
}

func (f *fixture) role(t *testing.T, name string, permissions ...string) *rbac.Role {
	t.Helper()
	ctx := context.Background()
	r, err := f.roles.Create(ctx, name, "")
	if err != nil {
		t.Fatalf("create role %s: %v", name, err)
	}
	if len(permissions) > 0 {
		if err := f.roles.AssignPermissionsByName(ctx, r, permissions); err != nil {
			t.Fatalf("assign permissions to %s: %v", name, err)
		}
	}
	return r
}

func user(id string) rbac.Subject {
	return rbac.Subject{Type: "user", ID: id}
}
