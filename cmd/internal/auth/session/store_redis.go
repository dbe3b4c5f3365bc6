package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash layout of sess:{id}. Timestamps are unix milliseconds.
const (
	fieldUserID       = "user_id"
	fieldCurrentHash  = "current_hash"
	fieldCurrentID    = "current_identifier"
	fieldPreviousHash = "previous_hash"
	fieldPreviousID   = "previous_identifier"
	fieldCreatedAt    = "created_at"
	fieldRotatedAt    = "rotated_at"
	fieldExpiresAt    = "expires_at"
	fieldUserAgent    = "user_agent"
	fieldIP           = "ip"
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 3))
redis.call("PEXPIRE", KEYS[1], ARGV[2])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("PEXPIRE", KEYS[3], ARGV[2])
return 1
`

// rotateSessionScript returns 1 on success, 0 when the observed identifier is
// no longer current (or the record is gone) and -1 when the new identifier is taken.
const rotateSessionScript = `
local cur = redis.call("HGET", KEYS[1], "current_identifier")
if not cur or cur ~= ARGV[1] then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end

local prev = redis.call("HGET", KEYS[1], "previous_identifier")
if prev and prev ~= "" then
  redis.call("DEL", ARGV[7] .. prev)
end

local cur_hash = redis.call("HGET", KEYS[1], "current_hash")
redis.call("HSET", KEYS[1],
  "previous_hash", cur_hash,
  "previous_identifier", cur,
  "current_hash", ARGV[2],
  "current_identifier", ARGV[3],
  "rotated_at", ARGV[4],
  "expires_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("SET", KEYS[2], ARGV[8], "PX", ARGV[6])
redis.call("PEXPIRE", KEYS[3], ARGV[6])

local uid = redis.call("HGET", KEYS[1], "user_id")
if uid then
  redis.call("PEXPIRE", ARGV[9] .. uid, ARGV[6])
end
return 1
`

const deleteSessionScript = `
local f = redis.call("HMGET", KEYS[1], "user_id", "current_identifier", "previous_identifier")
if f[2] then
  redis.call("DEL", ARGV[1] .. f[2])
end
if f[3] and f[3] ~= "" then
  redis.call("DEL", ARGV[1] .. f[3])
end
if f[1] then
  redis.call("SREM", ARGV[2] .. f[1], ARGV[3])
end
return redis.call("DEL", KEYS[1])
`

var (
	createSessionLua = redis.NewScript(createSessionScript)
	rotateSessionLua = redis.NewScript(rotateSessionScript)
	deleteSessionLua = redis.NewScript(deleteSessionScript)
)

// RedisStore implements Store on Redis. Records expire through native key TTLs,
// so DeleteExpired is a no-op.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed session store. Keys are namespaced with
// prefix (default "sessiond:").
func NewRedisStore(rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	if prefix == "" {
		prefix = "sessiond:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) sessKey(id string) string         { return s.prefix + "sess:" + id }
func (s *RedisStore) identKey(identifier string) string { return s.prefix + "sessid:" + identifier }
func (s *RedisStore) userKey(userID string) string     { return s.prefix + "usess:" + userID }

// Create stores rec with a TTL that ends at rec.ExpiresAt.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("session: record already expired")
	}

	args := []any{
		rec.ID, ttl.Milliseconds(),
		fieldUserID, rec.UserID,
		fieldCurrentHash, rec.CurrentHash,
		fieldCurrentID, rec.CurrentIdentifier,
		fieldPreviousHash, "",
		fieldPreviousID, "",
		fieldCreatedAt, rec.CreatedAt.UnixMilli(),
		fieldRotatedAt, "",
		fieldExpiresAt, rec.ExpiresAt.UnixMilli(),
		fieldUserAgent, rec.UserAgent,
		fieldIP, validIPOrEmpty(rec.IP),
	}
	keys := []string{s.sessKey(rec.ID), s.identKey(rec.CurrentIdentifier), s.userKey(rec.UserID)}

	n, err := createSessionLua.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// FindByIdentifier resolves identifier through the sessid index.
func (s *RedisStore) FindByIdentifier(ctx context.Context, identifier string) (Record, error) {
	id, err := s.rdb.Get(ctx, s.identKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	fields, err := s.rdb.HGetAll(ctx, s.sessKey(id)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec, err := recordFromHash(id, fields)
	if err != nil {
		return Record{}, err
	}
	// A stale index entry must not resolve to a record that no longer owns it.
	if rec.CurrentIdentifier != identifier && rec.PreviousIdentifier != identifier {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Rotate runs the rotation as one Lua script so it is atomic on the server.
func (s *RedisStore) Rotate(ctx context.Context, r Rotation) (bool, error) {
	ttl := r.ExpiresAt.Sub(r.Now)
	if ttl <= 0 {
		return false, fmt.Errorf("session: rotation already expired")
	}

	keys := []string{s.sessKey(r.ID), s.identKey(r.NewIdentifier), s.identKey(r.Observed)}
	n, err := rotateSessionLua.Run(ctx, s.rdb, keys,
		r.Observed,
		r.NewHash,
		r.NewIdentifier,
		r.Now.UnixMilli(),
		r.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		s.prefix+"sessid:",
		r.ID,
		s.prefix+"usess:",
	).Int()
	if err != nil {
		return false, err
	}
	switch n {
	case 1:
		return true, nil
	case -1:
		return false, ErrDuplicate
	default:
		return false, nil
	}
}

// Delete removes a record and its index entries.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.delete(ctx, id)
	return err
}

func (s *RedisStore) delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.rdb, []string{s.sessKey(id)},
		s.prefix+"sessid:", s.prefix+"usess:", id,
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByUser removes every record listed in the user's index set.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	var n int64
	for _, id := range ids {
		deleted, err := s.delete(ctx, id)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	if err := s.rdb.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return n, err
	}
	return n, nil
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func recordFromHash(id string, f map[string]string) (Record, error) {
	created, err := parseMillis(f[fieldCreatedAt])
	if err != nil {
		return Record{}, fmt.Errorf("session: corrupt created_at: %w", err)
	}
	expires, err := parseMillis(f[fieldExpiresAt])
	if err != nil {
		return Record{}, fmt.Errorf("session: corrupt expires_at: %w", err)
	}

	rec := Record{
		ID:                 id,
		UserID:             f[fieldUserID],
		CurrentHash:        f[fieldCurrentHash],
		CurrentIdentifier:  f[fieldCurrentID],
		PreviousHash:       f[fieldPreviousHash],
		PreviousIdentifier: f[fieldPreviousID],
		CreatedAt:          created,
		ExpiresAt:          expires,
		UserAgent:          f[fieldUserAgent],
		IP:                 f[fieldIP],
	}
	if v := f[fieldRotatedAt]; v != "" {
		rotated, err := parseMillis(v)
		if err != nil {
			return Record{}, fmt.Errorf("session: corrupt rotated_at: %w", err)
		}
		rec.RotatedAt = &rotated
	}
	return rec, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
