package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store is the key-value contract profiles are persisted through. Load
// returns nil, nil when the player has no stored profile.
type Store interface {
	Load(ctx context.Context, playerID string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
}

// MemoryStore keeps encoded profiles in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, playerID string) (*Profile, error) {
	m.mu.RLock()
	data, ok := m.docs[playerID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(playerID, data)
}

func (m *MemoryStore) Save(_ context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.PlayerID, err)
	}
	m.mu.Lock()
	m.docs[p.PlayerID] = data
	m.mu.Unlock()
	return nil
}

// RedisStore keeps one JSON document per player under profile:<id>.
type RedisStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. A zero ttl keeps documents
// forever, which is what a primary store wants; a cache passes a ttl.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func (r *RedisStore) key(playerID string) string {
	return "profile:" + playerID
}

func (r *RedisStore) Load(ctx context.Context, playerID string) (*Profile, error) {
	data, err := r.redis.Get(ctx, r.key(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", playerID, err)
	}
	return Decode(playerID, data)
}

func (r *RedisStore) Save(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.PlayerID, err)
	}
	if err := r.redis.Set(ctx, r.key(p.PlayerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save profile %s: %w", p.PlayerID, err)
	}
	return nil
}

// PostgresStore keeps profiles as JSONB rows in player_profiles.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const loadProfileSQL = `SELECT data FROM player_profiles WHERE player_id = $1`

const saveProfileSQL = `
INSERT INTO player_profiles (player_id, username, data, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (player_id) DO UPDATE
SET username = EXCLUDED.username, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Load(ctx context.Context, playerID string) (*Profile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, loadProfileSQL, playerID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", playerID, err)
	}
	return Decode(playerID, data)
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.PlayerID, err)
	}
	if _, err := s.pool.Exec(ctx, saveProfileSQL, p.PlayerID, p.Username, data, p.UpdatedAt); err != nil {
		return fmt.Errorf("save profile %s: %w", p.PlayerID, err)
	}
	return nil
}

// CachedStore reads through a Redis cache in front of a primary store.
// Cache errors never fail a call.
type CachedStore struct {
	primary Store
	cache   *RedisStore
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(primary Store, cache *RedisStore) *CachedStore {
	return &CachedStore{primary: primary, cache: cache}
}

func (c *CachedStore) Load(ctx context.Context, playerID string) (*Profile, error) {
	if p, err := c.cache.Load(ctx, playerID); err == nil && p != nil {
		return p, nil
	}
	p, err := c.primary.Load(ctx, playerID)
	if err != nil || p == nil {
		return p, err
	}
	_ = c.cache.Save(ctx, p)
	return p, nil
}

func (c *CachedStore) Save(ctx context.Context, p *Profile) error {
	if err := c.primary.Save(ctx, p); err != nil {
		return err
	}
	_ = c.cache.Save(ctx, p)
	return nil
}
