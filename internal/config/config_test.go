package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "falling-trivia", cfg.Name)
	assert.Equal(t, 60*time.Second, cfg.Gameplay.QueueTimeout)
	assert.Equal(t, 60*time.Second, cfg.Gameplay.ChallengeTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Gameplay.SessionSettleDelay)
	assert.Equal(t, 100, cfg.Leaderboard.Capacity)
	assert.Equal(t, []string{"math", "spelling", "geography", "science", "history"}, cfg.Leaderboard.Subjects)
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadPostgresNeedsDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PG_HOST", "localhost")

	_, err := Load(context.Background())
	assert.Error(t, err)

	t.Setenv("PG_USER", "trivia")
	t.Setenv("PG_DATABASE", "trivia")
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, cfg.Postgres.DSN(), "dbname=trivia")
}
