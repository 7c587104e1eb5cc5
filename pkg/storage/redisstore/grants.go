package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// grantKind binds the key helpers for role or permission grants
type grantKind struct {
	kind       string
	entity     func(int64) string
	holders    func(int64) string
	subjectKey func(rbac.Subject) string
}

func (s *Store) roleGrantKind() grantKind {
	return grantKind{kind: rbac.KindRole, entity: s.roleKey, holders: s.roleSubjects, subjectKey: s.subjectRoles}
}

func (s *Store) permissionGrantKind() grantKind {
	return grantKind{kind: rbac.KindPermission, entity: s.permissionKey, holders: s.permissionSubjects, subjectKey: s.subjectPermissions}
}

func (s *Store) addGrant(ctx context.Context, op string, g grantKind, subject rbac.Subject, eid int64, grantedAt time.Time) error {
	entityKey := g.entity(eid)
	grantKey := g.subjectKey(subject)
	return s.update(ctx, op, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, entityKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return rbac.NewNotFoundError(g.kind)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSetNX(ctx, grantKey, itoa(eid), encodeTime(grantedAt))
			pipe.SAdd(ctx, g.holders(eid), grantKey)
			return nil
		})
		return err
	}, entityKey)
}

func (s *Store) removeGrant(ctx context.Context, op string, g grantKind, subject rbac.Subject, eid int64) error {
	grantKey := g.subjectKey(subject)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, grantKey, itoa(eid))
		pipe.SRem(ctx, g.holders(eid), grantKey)
		return nil
	})
	return rbac.NewStoreError(op, err)
}

func (s *Store) findGrant(ctx context.Context, op string, g grantKind, subject rbac.Subject, eid int64) (time.Time, error) {
	v, err := s.client.HGet(ctx, g.subjectKey(subject), itoa(eid)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, rbac.NewNotFoundError(rbac.KindGrant)
	}
	if err != nil {
		return time.Time{}, rbac.NewStoreError(op, err)
	}
	t, err := decodeTime(v)
	if err != nil {
		return time.Time{}, rbac.NewStoreError(op, err)
	}
	return t, nil
}

func (s *Store) grantedIDs(ctx context.Context, g grantKind, subject rbac.Subject) ([]int64, error) {
	fields, err := s.client.HKeys(ctx, g.subjectKey(subject)).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(fields)
}

// replaceGrants swaps the subject's grant set; surviving grants keep their timestamp
func (s *Store) replaceGrants(ctx context.Context, op string, g grantKind, subject rbac.Subject, ids []int64, grantedAt time.Time) error {
	ids = uniqueIDs(ids)
	grantKey := g.subjectKey(subject)

	entityKeys := make([]string, len(ids))
	for i, eid := range ids {
		entityKeys[i] = g.entity(eid)
	}
	watched := append([]string{grantKey}, entityKeys...)

	return s.update(ctx, op, func(tx *redis.Tx) error {
		if len(entityKeys) > 0 {
			n, err := tx.Exists(ctx, entityKeys...).Result()
			if err != nil {
				return err
			}
			if n != int64(len(entityKeys)) {
				return rbac.NewNotFoundError(g.kind)
			}
		}

		fields, err := tx.HKeys(ctx, grantKey).Result()
		if err != nil {
			return err
		}
		current, err := parseIDs(fields)
		if err != nil {
			return err
		}

		keep := make(map[int64]bool, len(ids))
		for _, eid := range ids {
			keep[eid] = true
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, eid := range current {
				if !keep[eid] {
					pipe.HDel(ctx, grantKey, itoa(eid))
					pipe.SRem(ctx, g.holders(eid), grantKey)
				}
			}
			for _, eid := range ids {
				pipe.HSetNX(ctx, grantKey, itoa(eid), encodeTime(grantedAt))
				pipe.SAdd(ctx, g.holders(eid), grantKey)
			}
			return nil
		})
		return err
	}, watched...)
}

// AddRoleGrant records that a subject holds a role
func (s *Store) AddRoleGrant(ctx context.Context, grant rbac.RoleGrant) error {
	return s.addGrant(ctx, "add_role_grant", s.roleGrantKind(), grant.Subject, grant.RoleID, grant.GrantedAt)
}

// RemoveRoleGrant deletes a role grant if present
func (s *Store) RemoveRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) error {
	return s.removeGrant(ctx, "remove_role_grant", s.roleGrantKind(), subject, roleID)
}

// FindRoleGrant returns the grant of roleID to subject
func (s *Store) FindRoleGrant(ctx context.Context, subject rbac.Subject, roleID int64) (*rbac.RoleGrant, error) {
	grantedAt, err := s.findGrant(ctx, "find_role_grant", s.roleGrantKind(), subject, roleID)
	if err != nil {
		return nil, err
	}
	return &rbac.RoleGrant{Subject: subject, RoleID: roleID, GrantedAt: grantedAt}, nil
}

// ListRoleGrants returns the roles held by subject with their permission sets, ordered by name
func (s *Store) ListRoleGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Role, error) {
	const op = "list_role_grants"
	ids, err := s.grantedIDs(ctx, s.roleGrantKind(), subject)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	roles, err := s.loadRoles(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return roles, nil
}

// ReplaceRoleGrants sets the subject's role grants to exactly roleIDs
func (s *Store) ReplaceRoleGrants(ctx context.Context, subject rbac.Subject, roleIDs []int64, grantedAt time.Time) error {
	return s.replaceGrants(ctx, "replace_role_grants", s.roleGrantKind(), subject, roleIDs, grantedAt)
}

// AddPermissionGrant records that a subject holds a permission directly
func (s *Store) AddPermissionGrant(ctx context.Context, grant rbac.PermissionGrant) error {
	return s.addGrant(ctx, "add_permission_grant", s.permissionGrantKind(), grant.Subject, grant.PermissionID, grant.GrantedAt)
}

// RemovePermissionGrant deletes a direct grant if present
func (s *Store) RemovePermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) error {
	return s.removeGrant(ctx, "remove_permission_grant", s.permissionGrantKind(), subject, permissionID)
}

// FindPermissionGrant returns the direct grant of permissionID to subject
func (s *Store) FindPermissionGrant(ctx context.Context, subject rbac.Subject, permissionID int64) (*rbac.PermissionGrant, error) {
	grantedAt, err := s.findGrant(ctx, "find_permission_grant", s.permissionGrantKind(), subject, permissionID)
	if err != nil {
		return nil, err
	}
	return &rbac.PermissionGrant{Subject: subject, PermissionID: permissionID, GrantedAt: grantedAt}, nil
}

// ListPermissionGrants returns the permissions held directly by subject, ordered by name
func (s *Store) ListPermissionGrants(ctx context.Context, subject rbac.Subject) ([]*rbac.Permission, error) {
	const op = "list_permission_grants"
	ids, err := s.grantedIDs(ctx, s.permissionGrantKind(), subject)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	perms, err := s.loadPermissions(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return perms, nil
}

// ReplacePermissionGrants sets the subject's direct grants to exactly permissionIDs
func (s *Store) ReplacePermissionGrants(ctx context.Context, subject rbac.Subject, permissionIDs []int64, grantedAt time.Time) error {
	return s.replaceGrants(ctx, "replace_permission_grants", s.permissionGrantKind(), subject, permissionIDs, grantedAt)
}
