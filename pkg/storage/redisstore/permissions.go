package redisstore

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// SavePermission inserts or updates a permission
func (s *Store) SavePermission(ctx context.Context, perm *rbac.Permission) error {
	const op = "save_permission"
	names := s.permissionNames()

	if perm.ID == 0 {
		var newID int64
		err := s.update(ctx, op, func(tx *redis.Tx) error {
			taken, err := tx.HExists(ctx, names, perm.Name).Result()
			if err != nil {
				return err
			}
			if taken {
				return &rbac.DuplicateNameError{Kind: rbac.KindPermission, Name: perm.Name}
			}
			newID, err = tx.Incr(ctx, s.permissionSeq()).Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, s.permissionKey(newID), recordFields(perm.Name, perm.Description, perm.CreatedAt, perm.UpdatedAt))
				pipe.HSet(ctx, names, perm.Name, newID)
				return nil
			})
			return err
		}, names)
		if err != nil {
			return err
		}
		perm.ID = newID
		return nil
	}

	key := s.permissionKey(perm.ID)
	return s.update(ctx, op, func(tx *redis.Tx) error {
		oldName, err := tx.HGet(ctx, key, "name").Result()
		if errors.Is(err, redis.Nil) {
			return rbac.NewNotFoundError(rbac.KindPermission, perm.Name)
		}
		if err != nil {
			return err
		}
		owner, err := tx.HGet(ctx, names, perm.Name).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != perm.ID {
			return &rbac.DuplicateNameError{Kind: rbac.KindPermission, Name: perm.Name}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if oldName != perm.Name {
				pipe.HDel(ctx, names, oldName)
			}
			pipe.HSet(ctx, names, perm.Name, perm.ID)
			pipe.HSet(ctx, key, "name", perm.Name, "description", perm.Description, "updated_at", encodeTime(perm.UpdatedAt))
			return nil
		})
		return err
	}, key, names)
}

// RemovePermission deletes a permission along with its role memberships and direct grants
func (s *Store) RemovePermission(ctx context.Context, pid int64) error {
	key := s.permissionKey(pid)
	names := s.permissionNames()
	rolesKey := s.permissionRoles(pid)
	subjectsKey := s.permissionSubjects(pid)

	return s.update(ctx, "remove_permission", func(tx *redis.Tx) error {
		name, err := tx.HGet(ctx, key, "name").Result()
		if errors.Is(err, redis.Nil) {
			return rbac.NewNotFoundError(rbac.KindPermission)
		}
		if err != nil {
			return err
		}
		roleIDs, err := tx.SMembers(ctx, rolesKey).Result()
		if err != nil {
			return err
		}
		roles, err := parseIDs(roleIDs)
		if err != nil {
			return err
		}
		grantKeys, err := tx.SMembers(ctx, subjectsKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, rolesKey, subjectsKey)
			pipe.HDel(ctx, names, name)
			for _, rid := range roles {
				pipe.SRem(ctx, s.rolePermissions(rid), itoa(pid))
			}
			for _, grantKey := range grantKeys {
				pipe.HDel(ctx, grantKey, itoa(pid))
			}
			return nil
		})
		return err
	}, key, names, rolesKey, subjectsKey)
}

// FindPermissionByName looks up a permission by exact name
func (s *Store) FindPermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	const op = "find_permission_by_name"
	pid, err := s.client.HGet(ctx, s.permissionNames(), name).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, rbac.NewNotFoundError(rbac.KindPermission, name)
	}
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	perms, err := s.loadPermissions(ctx, []int64{pid})
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	if len(perms) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindPermission, name)
	}
	return perms[0], nil
}

// FindPermissionsByNames returns the permissions whose names are in names, ordered by name
func (s *Store) FindPermissionsByNames(ctx context.Context, names []string) ([]*rbac.Permission, error) {
	const op = "find_permissions_by_names"
	ids, err := s.lookupIDs(ctx, s.permissionNames(), names)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	perms, err := s.loadPermissions(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return perms, nil
}

// FindPermissionByID looks up a permission by id
func (s *Store) FindPermissionByID(ctx context.Context, pid int64) (*rbac.Permission, error) {
	perms, err := s.loadPermissions(ctx, []int64{pid})
	if err != nil {
		return nil, rbac.NewStoreError("find_permission_by_id", err)
	}
	if len(perms) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindPermission)
	}
	return perms[0], nil
}

// ListPermissions returns every permission ordered by name
func (s *Store) ListPermissions(ctx context.Context) ([]*rbac.Permission, error) {
	const op = "list_permissions"
	ids, err := s.allIDs(ctx, s.permissionNames())
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	perms, err := s.loadPermissions(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return perms, nil
}
