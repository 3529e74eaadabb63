package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "browserhub:session:"
	redisIndexKey  = "browserhub:sessions"
)

// RedisStore keeps each session in a hash with an index set of names
type RedisStore struct {
	redis *RedisClient
	ttl   time.Duration // zero keeps sessions forever
}

// NewRedisStore creates a store on top of a connected client
func NewRedisStore(client *RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func sessionKey(name string) string {
	return redisKeyPrefix + name
}

// List returns every indexed session sorted by name. Expired members are pruned from the index.
func (r *RedisStore) List(ctx context.Context) ([]Record, error) {
	names, err := r.redis.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, failure.Wrap(failure.PersistenceFailure, "list sessions", "cannot read session index", err)
	}

	records := make([]Record, 0, len(names))
	for _, name := range names {
		record, err := r.record(ctx, name)
		if failure.Is(err, failure.NotFound) {
			r.redis.client.SRem(ctx, redisIndexKey, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	sortRecords(records)
	return records, nil
}

func (r *RedisStore) record(ctx context.Context, name string) (Record, error) {
	key := sessionKey(name)

	values, err := r.redis.client.HMGet(ctx, key, "created_at", "last_used_at").Result()
	if err != nil {
		return Record{}, failure.Wrap(failure.PersistenceFailure, "read session", "cannot read "+name, err)
	}
	if values[0] == nil {
		return Record{}, notFound("read session", name)
	}

	size, err := r.redis.client.HStrLen(ctx, key, "storage_state").Result()
	if err != nil {
		return Record{}, failure.Wrap(failure.PersistenceFailure, "read session", "cannot read "+name, err)
	}

	record := Record{Name: name, Size: size}
	if s, ok := values[0].(string); ok {
		record.CreatedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	if s, ok := values[1].(string); ok {
		record.LastUsedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	return record, nil
}

// Exists reports whether a session hash is present
func (r *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}

	n, err := r.redis.client.Exists(ctx, sessionKey(name)).Result()
	if err != nil {
		return false, failure.Wrap(failure.PersistenceFailure, "exists", "cannot query "+name, err)
	}
	return n > 0, nil
}

// Save writes the snapshot and metadata in one transaction
func (r *RedisStore) Save(ctx context.Context, name string, state []byte) error {
	if err := validateState("save session", name, state); err != nil {
		return err
	}

	key := sessionKey(name)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	createdAt, err := r.redis.client.HGet(ctx, key, "created_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return failure.Wrap(failure.PersistenceFailure, "save session", "cannot read "+name, err)
	}
	if createdAt == "" {
		createdAt = now
	}

	_, err = r.redis.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"name":          name,
			"created_at":    createdAt,
			"last_used_at":  now,
			"storage_state": string(state),
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.SAdd(ctx, redisIndexKey, name)
		return nil
	})
	if err != nil {
		return failure.Wrap(failure.PersistenceFailure, "save session", "cannot write "+name, err)
	}

	slog.Info("session saved", "session", name, "bytes", len(state), "backend", "redis")
	return nil
}

// Load returns the stored storage-state document
func (r *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, notFound("load session", name)
	}

	state, err := r.redis.client.HGet(ctx, sessionKey(name), "storage_state").Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("load session", name)
	}
	if err != nil {
		return nil, failure.Wrap(failure.PersistenceFailure, "load session", "cannot read "+name, err)
	}
	return []byte(state), nil
}

// Delete removes the session and reports whether it existed
func (r *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}

	n, err := r.redis.client.Del(ctx, sessionKey(name)).Result()
	if err != nil {
		return false, failure.Wrap(failure.PersistenceFailure, "delete session", "cannot remove "+name, err)
	}
	if err := r.redis.client.SRem(ctx, redisIndexKey, name).Err(); err != nil {
		slog.Warn("failed to remove session from index", "session", name, "error", err)
	}
	return n > 0, nil
}

// Touch moves last_used_at forward and refreshes the expiry
func (r *RedisStore) Touch(ctx context.Context, name string) error {
	if !ValidName(name) {
		return notFound("touch session", name)
	}

	record, err := r.record(ctx, name)
	if err != nil {
		return err
	}

	key := sessionKey(name)
	next := nextTouch(record.LastUsedAt).UTC().Format(time.RFC3339Nano)
	if err := r.redis.client.HSet(ctx, key, "last_used_at", next).Err(); err != nil {
		return failure.Wrap(failure.PersistenceFailure, "touch session", "cannot update "+name, err)
	}

	if r.ttl > 0 {
		if err := r.redis.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			slog.Warn("failed to refresh TTL", "session", name, "error", err)
		}
	}
	return nil
}

// String identifies the backend in status output
func (r *RedisStore) String() string {
	return fmt.Sprintf("redis(ttl=%s)", r.ttl)
}
