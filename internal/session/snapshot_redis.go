package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore persists the snapshot in Redis under SnapshotKey.
// Useful when several console replicas sit behind a load balancer and must
// agree on the active session; last write wins.
type RedisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

func (r *RedisSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	val, err := r.client.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(val)
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, SnapshotKey, data, 0).Err()
}

func (r *RedisSnapshotStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, SnapshotKey).Err()
}
