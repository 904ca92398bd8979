package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchivedSnapshot is one historical copy of a board.
type ArchivedSnapshot struct {
	Board       string    `json:"board"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

// Archive keeps periodic copies of boards for history queries.
type Archive interface {
	Insert(ctx context.Context, board string, generatedAt time.Time, entries []Entry) error
	Latest(ctx context.Context, board string) (*ArchivedSnapshot, error)
}

// PostgresArchive writes rows to leaderboard_snapshots.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

var _ Archive = (*PostgresArchive)(nil)

func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

const insertSnapshotSQL = `
INSERT INTO leaderboard_snapshots (board, generated_at, entries, source_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (board, source_hash) DO NOTHING`

const latestSnapshotSQL = `
SELECT board, generated_at, entries
FROM leaderboard_snapshots
WHERE board = $1
ORDER BY generated_at DESC
LIMIT 1`

// Insert stores entries unless an identical snapshot of the board exists.
func (a *PostgresArchive) Insert(ctx context.Context, board string, generatedAt time.Time, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	if _, err := a.pool.Exec(ctx, insertSnapshotSQL, board, generatedAt, data, hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("insert leaderboard snapshot %s: %w", board, err)
	}
	return nil
}

// Latest returns the newest archived snapshot, or nil when there is none.
func (a *PostgresArchive) Latest(ctx context.Context, board string) (*ArchivedSnapshot, error) {
	var (
		snap ArchivedSnapshot
		raw  []byte
	)
	err := a.pool.QueryRow(ctx, latestSnapshotSQL, board).Scan(&snap.Board, &snap.GeneratedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load leaderboard snapshot %s: %w", board, err)
	}
	if err := json.Unmarshal(raw, &snap.Entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard snapshot %s: %w", board, err)
	}
	return &snap, nil
}
