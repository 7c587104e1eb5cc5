// Package redisstore implements rbac.Store on Redis.
//
// Layout under the configured prefix:
//
//	{p}:permission:{id}             hash of permission fields
//	{p}:permission:names            hash name -> id
//	{p}:permission:{id}:roles       set of role ids containing the permission
//	{p}:permission:{id}:subjects    set of subject grant keys holding it directly
//	{p}:role:{id}                   hash of role fields
//	{p}:role:names                  hash name -> id
//	{p}:role:{id}:permissions       set of permission ids
//	{p}:role:{id}:subjects          set of subject grant keys holding the role
//	{p}:subject:{type}:{id}:roles        hash role id -> granted_at
//	{p}:subject:{type}:{id}:permissions  hash permission id -> granted_at
//
// Writes that check before they write run under WATCH and commit with
// MULTI/EXEC; a transaction that keeps losing races returns rbac.ErrConflict.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const maxTxRetries = 10

// Store is a Redis-backed rbac.Store
type Store struct {
	client *redis.Client
	prefix string
	logger *observability.Logger
}

var _ rbac.Store = (*Store)(nil)

// New wraps a connected client
func New(client *redis.Client, prefix string, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if prefix == "" {
		prefix = "rbac"
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.WithField("backend", "redis"),
	}
}

// Open connects using config. observer may be nil.
func Open(config Config, logger *observability.Logger, observer CommandObserver) (*Store, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	Instrument(client, observer)
	return New(client, config.Prefix, logger), nil
}

// Client returns the underlying client for health checks
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping checks Redis connectivity
func (s *Store) Ping(ctx context.Context) error {
	return rbac.NewStoreError("ping", s.client.Ping(ctx).Err())
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func (s *Store) permissionKey(pid int64) string   { return s.key("permission", itoa(pid)) }
func (s *Store) permissionNames() string          { return s.key("permission", "names") }
func (s *Store) permissionSeq() string            { return s.key("seq", "permission") }
func (s *Store) permissionRoles(pid int64) string { return s.key("permission", itoa(pid), "roles") }
func (s *Store) permissionSubjects(pid int64) string {
	return s.key("permission", itoa(pid), "subjects")
}
func (s *Store) roleKey(rid int64) string         { return s.key("role", itoa(rid)) }
func (s *Store) roleNames() string                { return s.key("role", "names") }
func (s *Store) roleSeq() string                  { return s.key("seq", "role") }
func (s *Store) rolePermissions(rid int64) string { return s.key("role", itoa(rid), "permissions") }
func (s *Store) roleSubjects(rid int64) string    { return s.key("role", itoa(rid), "subjects") }
func (s *Store) subjectRoles(subject rbac.Subject) string {
	return s.key("subject", url.QueryEscape(subject.Type), url.QueryEscape(subject.ID), "roles")
}
func (s *Store) subjectPermissions(subject rbac.Subject) string {
	return s.key("subject", url.QueryEscape(subject.Type), url.QueryEscape(subject.ID), "permissions")
}

// update runs fn under WATCH on keys, retrying when another client touched them
func (s *Store) update(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			s.logger.WithFields(map[string]interface{}{
				"op":      op,
				"attempt": attempt + 1,
			}).Debug("redis transaction lost a race, retrying")
			continue
		default:
			return mapError(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, rbac.ErrConflict)
}

func mapError(op string, err error) error {
	if err == nil || errors.Is(err, rbac.ErrNotFound) || errors.Is(err, rbac.ErrDuplicateName) {
		return err
	}
	return rbac.NewStoreError(op, err)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", v, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func idStrings(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, v := range ids {
		out[i] = itoa(v)
	}
	return out
}

type record struct {
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

func decodeRecord(fields map[string]string) (record, error) {
	created, err := decodeTime(fields["created_at"])
	if err != nil {
		return record{}, err
	}
	updated, err := decodeTime(fields["updated_at"])
	if err != nil {
		return record{}, err
	}
	return record{
		name:        fields["name"],
		description: fields["description"],
		createdAt:   created,
		updatedAt:   updated,
	}, nil
}

func recordFields(name, description string, createdAt, updatedAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"description": description,
		"created_at":  encodeTime(createdAt),
		"updated_at":  encodeTime(updatedAt),
	}
}

// loadPermissions fetches the given permissions, skipping ids that no longer exist
func (s *Store) loadPermissions(ctx context.Context, ids []int64) ([]*rbac.Permission, error) {
	perms := make([]*rbac.Permission, 0, len(ids))
	if len(ids) == 0 {
		return perms, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, pid := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.permissionKey(pid))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}
		perms = append(perms, &rbac.Permission{
			ID:          ids[i],
			Name:        rec.name,
			Description: rec.description,
			CreatedAt:   rec.createdAt,
			UpdatedAt:   rec.updatedAt,
		})
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

// loadRoles fetches the given roles with their permission sets, skipping missing ids
func (s *Store) loadRoles(ctx context.Context, ids []int64) ([]*rbac.Role, error) {
	roles := make([]*rbac.Role, 0, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}

	fieldCmds := make([]*redis.StringStringMapCmd, len(ids))
	memberCmds := make([]*redis.StringSliceCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rid := range ids {
			fieldCmds[i] = pipe.HGetAll(ctx, s.roleKey(rid))
			memberCmds[i] = pipe.SMembers(ctx, s.rolePermissions(rid))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	memberIDs := make([][]int64, len(ids))
	var all []int64
	for i, cmd := range memberCmds {
		pids, err := parseIDs(cmd.Val())
		if err != nil {
			return nil, err
		}
		memberIDs[i] = pids
		all = append(all, pids...)
	}

	perms, err := s.loadPermissions(ctx, uniqueIDs(all))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]rbac.Permission, len(perms))
	for _, p := range perms {
		byID[p.ID] = *p
	}

	for i, cmd := range fieldCmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}
		members := make([]rbac.Permission, 0, len(memberIDs[i]))
		for _, pid := range memberIDs[i] {
			if p, ok := byID[pid]; ok {
				members = append(members, p)
			}
		}
		roles = append(roles, rbac.RestoreRole(ids[i], rec.name, rec.description, rec.createdAt, rec.updatedAt, members))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// lookupIDs resolves names through a name index hash, dropping unknown names
func (s *Store) lookupIDs(ctx context.Context, index string, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, index, names...).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q in %s: %w", str, index, err)
		}
		ids = append(ids, n)
	}
	return uniqueIDs(ids), nil
}

// allIDs returns every id in a name index hash
func (s *Store) allIDs(ctx context.Context, index string) ([]int64, error) {
	values, err := s.client.HVals(ctx, index).Result()
	if err != nil {
		return nil, err
	}
	return parseIDs(values)
}
