package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore holds snapshots by key. Put replaces the whole snapshot.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (*Snapshot, bool, error)
	Put(ctx context.Context, key string, s *Snapshot) error
	Purge(ctx context.Context) error
}

// MemoryStore keeps snapshots in a bounded in-process LRU.
type MemoryStore struct {
	snapshots *lru.Cache[string, *Snapshot]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, *Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot lru: %w", err)
	}
	return &MemoryStore{snapshots: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Snapshot, bool, error) {
	s, ok := m.snapshots.Get(key)
	return s, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, s *Snapshot) error {
	m.snapshots.Add(key, s)
	return nil
}

func (m *MemoryStore) Purge(context.Context) error {
	m.snapshots.Purge()
	return nil
}

// RedisStore shares snapshots between processes. Each snapshot is one JSON
// string, so a SET is an atomic replacement.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Snapshot, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &s, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Purge deletes every key under the store prefix.
func (r *RedisStore) Purge(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
