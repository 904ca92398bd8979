package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BoardSnapshot is the persisted form of a board.
type BoardSnapshot struct {
	Name      string    `json:"name"`
	PeriodKey string    `json:"period_key,omitempty"`
	NextReset time.Time `json:"next_reset,omitempty"`
	Entries   []Entry   `json:"entries"`
}

// SnapshotStore saves boards so they survive restarts.
type SnapshotStore interface {
	Save(ctx context.Context, snaps []BoardSnapshot) error
	LoadAll(ctx context.Context) ([]BoardSnapshot, error)
}

// RedisSnapshotStore keeps one JSON document per board plus an index set.
type RedisSnapshotStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

func NewRedisSnapshotStore(client redis.UniversalClient, prefix string) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "lb"
	}
	return &RedisSnapshotStore{redis: client, prefix: prefix}
}

func (r *RedisSnapshotStore) boardKey(name string) string {
	return fmt.Sprintf("%s:board:%s", r.prefix, name)
}

func (r *RedisSnapshotStore) indexKey() string {
	return r.prefix + ":boards"
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snaps []BoardSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	pipe := r.redis.TxPipeline()
	for _, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode board %s: %w", snap.Name, err)
		}
		pipe.Set(ctx, r.boardKey(snap.Name), data, 0)
		pipe.SAdd(ctx, r.indexKey(), snap.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save board snapshots: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) LoadAll(ctx context.Context) ([]BoardSnapshot, error) {
	names, err := r.redis.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	out := make([]BoardSnapshot, 0, len(names))
	for _, name := range names {
		data, err := r.redis.Get(ctx, r.boardKey(name)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load board %s: %w", name, err)
		}
		var snap BoardSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode board %s: %w", name, err)
		}
		out = append(out, snap)
	}
	return out, nil
}
