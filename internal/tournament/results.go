package tournament

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gokatarajesh/falling-trivia/internal/profile"
)

// Result is the archived outcome of a completed tournament.
type Result struct {
	TournamentID string    `json:"tournament_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Subject      string    `json:"subject"`
	Difficulty   string    `json:"difficulty"`
	WinnerID     string    `json:"winner_id"`
	RunnerUpID   string    `json:"runner_up_id,omitempty"`
	Participants []string  `json:"participants"`
	Rounds       int       `json:"rounds"`
	IsOfficial   bool      `json:"is_official"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ResultArchive stores completed tournaments. Recording the same tournament
// twice keeps the first row.
type ResultArchive interface {
	Record(ctx context.Context, r Result) error
	Recent(ctx context.Context, limit int) ([]Result, error)
}

// RewardGranter pays out a placement reward. Grants are keyed so a retried
// payout never credits twice; granted is false when the key was already used.
type RewardGranter interface {
	Grant(ctx context.Context, playerID, grantKey string, r Reward) (granted bool, err error)
}

// ProfileRewards credits rewards to player profiles.
type ProfileRewards struct {
	Profiles *profile.Service
}

func (p ProfileRewards) Grant(ctx context.Context, playerID, grantKey string, r Reward) (bool, error) {
	return p.Profiles.GrantReward(ctx, playerID, grantKey, profile.Reward{Kind: r.Kind, Amount: r.Amount})
}

// GrantKey identifies the reward for a placement in a tournament.
func GrantKey(tournamentID string, placement int) string {
	return fmt.Sprintf("tournament:%s:%d", tournamentID, placement)
}

// PostgresArchive writes to tournament_results.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

var _ ResultArchive = (*PostgresArchive)(nil)

func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

const insertResultSQL = `
INSERT INTO tournament_results (
	tournament_id, name, type, subject, difficulty, winner_id, runner_up_id,
	participants, rounds, is_official, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (tournament_id) DO NOTHING`

const recentResultsSQL = `
SELECT tournament_id, name, type, subject, difficulty, winner_id, runner_up_id,
	participants, rounds, is_official, started_at, finished_at
FROM tournament_results
ORDER BY finished_at DESC
LIMIT $1`

func (a *PostgresArchive) Record(ctx context.Context, r Result) error {
	participants, err := json.Marshal(r.Participants)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx, insertResultSQL,
		r.TournamentID, r.Name, r.Type, r.Subject, r.Difficulty, r.WinnerID, r.RunnerUpID,
		participants, r.Rounds, r.IsOfficial, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert tournament result %s: %w", r.TournamentID, err)
	}
	return nil
}

func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]Result, error) {
	rows, err := a.pool.Query(ctx, recentResultsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query tournament results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r   Result
			raw []byte
		)
		if err := rows.Scan(&r.TournamentID, &r.Name, &r.Type, &r.Subject, &r.Difficulty,
			&r.WinnerID, &r.RunnerUpID, &raw, &r.Rounds, &r.IsOfficial, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan tournament result: %w", err)
		}
		if err := json.Unmarshal(raw, &r.Participants); err != nil {
			return nil, fmt.Errorf("decode participants of %s: %w", r.TournamentID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoryArchive keeps results in process, for development and tests.
type MemoryArchive struct {
	mu      sync.Mutex
	results map[string]Result
}

var _ ResultArchive = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{results: make(map[string]Result)}
}

func (a *MemoryArchive) Record(_ context.Context, r Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.results[r.TournamentID]; !ok {
		a.results[r.TournamentID] = r
	}
	return nil
}

func (a *MemoryArchive) Recent(_ context.Context, limit int) ([]Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Result, 0, len(a.results))
	for _, r := range a.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
