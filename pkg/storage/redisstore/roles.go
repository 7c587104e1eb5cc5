package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// SaveRole inserts or updates a role and rewrites its permission set atomically
func (s *Store) SaveRole(ctx context.Context, role *rbac.Role) error {
	names := s.roleNames()
	members := role.PermissionIDs()

	memberKeys := make([]string, len(members))
	for i, pid := range members {
		memberKeys[i] = s.permissionKey(pid)
	}
	watched := append([]string{names}, memberKeys...)
	if role.ID != 0 {
		watched = append(watched, s.roleKey(role.ID), s.rolePermissions(role.ID))
	}

	var saved int64
	err := s.update(ctx, "save_role", func(tx *redis.Tx) error {
		rid := role.ID
		var oldName string
		var oldMembers []int64
		if rid != 0 {
			name, err := tx.HGet(ctx, s.roleKey(rid), "name").Result()
			if errors.Is(err, redis.Nil) {
				return rbac.NewNotFoundError(rbac.KindRole, role.Name)
			}
			if err != nil {
				return err
			}
			oldName = name

			current, err := tx.SMembers(ctx, s.rolePermissions(rid)).Result()
			if err != nil {
				return err
			}
			if oldMembers, err = parseIDs(current); err != nil {
				return err
			}
		}

		owner, err := tx.HGet(ctx, names, role.Name).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != rid {
			return &rbac.DuplicateNameError{Kind: rbac.KindRole, Name: role.Name}
		}

		if len(memberKeys) > 0 {
			n, err := tx.Exists(ctx, memberKeys...).Result()
			if err != nil {
				return err
			}
			if n != int64(len(memberKeys)) {
				return rbac.NewNotFoundError(rbac.KindPermission)
			}
		}

		if rid == 0 {
			if rid, err = tx.Incr(ctx, s.roleSeq()).Result(); err != nil {
				return err
			}
		}

		keep := make(map[int64]bool, len(members))
		for _, pid := range members {
			keep[pid] = true
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.roleKey(rid), recordFields(role.Name, role.Description, role.CreatedAt, role.UpdatedAt))
			if oldName != "" && oldName != role.Name {
				pipe.HDel(ctx, names, oldName)
			}
			pipe.HSet(ctx, names, role.Name, rid)

			pipe.Del(ctx, s.rolePermissions(rid))
			if len(members) > 0 {
				pipe.SAdd(ctx, s.rolePermissions(rid), idStrings(members)...)
			}
			for _, pid := range oldMembers {
				if !keep[pid] {
					pipe.SRem(ctx, s.permissionRoles(pid), itoa(rid))
				}
			}
			for _, pid := range members {
				pipe.SAdd(ctx, s.permissionRoles(pid), itoa(rid))
			}
			return nil
		})
		if err == nil {
			saved = rid
		}
		return err
	}, watched...)
	if err != nil {
		return err
	}

	role.ID = saved
	return nil
}

// UpdateRole rewrites a role's name, description and update time, leaving its
// permission set untouched
func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	key := s.roleKey(role.ID)
	names := s.roleNames()

	return s.update(ctx, "update_role", func(tx *redis.Tx) error {
		oldName, err := tx.HGet(ctx, key, "name").Result()
		if errors.Is(err, redis.Nil) {
			return rbac.NewNotFoundError(rbac.KindRole, role.Name)
		}
		if err != nil {
			return err
		}
		owner, err := tx.HGet(ctx, names, role.Name).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && owner != role.ID {
			return &rbac.DuplicateNameError{Kind: rbac.KindRole, Name: role.Name}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"name", role.Name,
				"description", role.Description,
				"updated_at", encodeTime(role.UpdatedAt),
			)
			if oldName != role.Name {
				pipe.HDel(ctx, names, oldName)
			}
			pipe.HSet(ctx, names, role.Name, role.ID)
			return nil
		})
		return err
	}, key, names)
}

// ChangeRolePermissions adds and removes members of a role's set
func (s *Store) ChangeRolePermissions(ctx context.Context, roleID int64, add, remove []int64, updatedAt time.Time) error {
	return s.editRolePermissions(ctx, "change_role_permissions", roleID, add, updatedAt,
		func(current map[int64]bool) (added, dropped []int64) {
			removing := make(map[int64]bool, len(remove))
			for _, pid := range remove {
				removing[pid] = true
				if current[pid] {
					dropped = append(dropped, pid)
				}
			}
			for _, pid := range uniqueIDs(add) {
				if !current[pid] && !removing[pid] {
					added = append(added, pid)
				}
			}
			return added, dropped
		})
}

// ReplaceRolePermissions swaps a role's set for exactly permissionIDs
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, updatedAt time.Time) error {
	return s.editRolePermissions(ctx, "replace_role_permissions", roleID, permissionIDs, updatedAt,
		func(current map[int64]bool) (added, dropped []int64) {
			keep := make(map[int64]bool, len(permissionIDs))
			for _, pid := range uniqueIDs(permissionIDs) {
				keep[pid] = true
				if !current[pid] {
					added = append(added, pid)
				}
			}
			for pid := range current {
				if !keep[pid] {
					dropped = append(dropped, pid)
				}
			}
			return added, dropped
		})
}

// editRolePermissions reads the role's set under WATCH, lets plan decide which
// links to add and drop, and writes both sides of each link with updatedAt
func (s *Store) editRolePermissions(ctx context.Context, op string, roleID int64, incoming []int64, updatedAt time.Time, plan func(current map[int64]bool) (added, dropped []int64)) error {
	key := s.roleKey(roleID)
	permsKey := s.rolePermissions(roleID)

	incoming = uniqueIDs(incoming)
	memberKeys := make([]string, len(incoming))
	for i, pid := range incoming {
		memberKeys[i] = s.permissionKey(pid)
	}
	watched := append([]string{key, permsKey}, memberKeys...)

	return s.update(ctx, op, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return rbac.NewNotFoundError(rbac.KindRole)
		}
		if len(memberKeys) > 0 {
			n, err := tx.Exists(ctx, memberKeys...).Result()
			if err != nil {
				return err
			}
			if n != int64(len(memberKeys)) {
				return rbac.NewNotFoundError(rbac.KindPermission)
			}
		}

		raw, err := tx.SMembers(ctx, permsKey).Result()
		if err != nil {
			return err
		}
		ids, err := parseIDs(raw)
		if err != nil {
			return err
		}
		current := make(map[int64]bool, len(ids))
		for _, pid := range ids {
			current[pid] = true
		}
		added, dropped := plan(current)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "updated_at", encodeTime(updatedAt))
			if len(added) > 0 {
				pipe.SAdd(ctx, permsKey, idStrings(added)...)
			}
			if len(dropped) > 0 {
				pipe.SRem(ctx, permsKey, idStrings(dropped)...)
			}
			for _, pid := range added {
				pipe.SAdd(ctx, s.permissionRoles(pid), itoa(roleID))
			}
			for _, pid := range dropped {
				pipe.SRem(ctx, s.permissionRoles(pid), itoa(roleID))
			}
			return nil
		})
		return err
	}, watched...)
}

// RemoveRole deletes a role along with its permission links and subject grants
func (s *Store) RemoveRole(ctx context.Context, rid int64) error {
	key := s.roleKey(rid)
	names := s.roleNames()
	permsKey := s.rolePermissions(rid)
	subjectsKey := s.roleSubjects(rid)

	return s.update(ctx, "remove_role", func(tx *redis.Tx) error {
		name, err := tx.HGet(ctx, key, "name").Result()
		if errors.Is(err, redis.Nil) {
			return rbac.NewNotFoundError(rbac.KindRole)
		}
		if err != nil {
			return err
		}
		current, err := tx.SMembers(ctx, permsKey).Result()
		if err != nil {
			return err
		}
		members, err := parseIDs(current)
		if err != nil {
			return err
		}
		grantKeys, err := tx.SMembers(ctx, subjectsKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, permsKey, subjectsKey)
			pipe.HDel(ctx, names, name)
			for _, pid := range members {
				pipe.SRem(ctx, s.permissionRoles(pid), itoa(rid))
			}
			for _, grantKey := range grantKeys {
				pipe.HDel(ctx, grantKey, itoa(rid))
			}
			return nil
		})
		return err
	}, key, names, permsKey, subjectsKey)
}

// FindRoleByName looks up a role by exact name
func (s *Store) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	const op = "find_role_by_name"
	rid, err := s.client.HGet(ctx, s.roleNames(), name).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, rbac.NewNotFoundError(rbac.KindRole, name)
	}
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	roles, err := s.loadRoles(ctx, []int64{rid})
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	if len(roles) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindRole, name)
	}
	return roles[0], nil
}

// FindRolesByNames returns the roles whose names are in names, ordered by name
func (s *Store) FindRolesByNames(ctx context.Context, names []string) ([]*rbac.Role, error) {
	const op = "find_roles_by_names"
	ids, err := s.lookupIDs(ctx, s.roleNames(), names)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	roles, err := s.loadRoles(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return roles, nil
}

// FindRoleByID looks up a role by id
func (s *Store) FindRoleByID(ctx context.Context, rid int64) (*rbac.Role, error) {
	roles, err := s.loadRoles(ctx, []int64{rid})
	if err != nil {
		return nil, rbac.NewStoreError("find_role_by_id", err)
	}
	if len(roles) == 0 {
		return nil, rbac.NewNotFoundError(rbac.KindRole)
	}
	return roles[0], nil
}

// ListRoles returns every role ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	const op = "list_roles"
	ids, err := s.allIDs(ctx, s.roleNames())
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	roles, err := s.loadRoles(ctx, ids)
	if err != nil {
		return nil, rbac.NewStoreError(op, err)
	}
	return roles, nil
}
