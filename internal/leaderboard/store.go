package leaderboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// Board names.
const (
	BoardDaily    = "daily"
	BoardWeekly   = "weekly"
	BoardAllTime  = "all_time"
	BoardStreak   = "streak"
	BoardSpeedRun = "speed_run"

	subjectPrefix = "subject:"
)

const defaultCapacity = 100

// SubjectBoard returns the board name for a subject.
func SubjectBoard(subject string) string {
	return subjectPrefix + strings.ToLower(subject)
}

// Clock supplies the current time; schedule.Scheduler satisfies it.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Publisher pushes board changes to clients.
type Publisher interface {
	Publish(ctx context.Context, update ws.LeaderboardDataPayload) error
}

// ScoreSubmission is a finished game as seen by the leaderboards.
type ScoreSubmission struct {
	PlayerID           string
	Username           string
	Score              int
	Subject            string
	BestStreak         int
	PerfectGame        bool
	AvgResponseSeconds float64
	At                 time.Time
	Extra              map[string]interface{}
}

// Options configures the store.
type Options struct {
	Capacity   int
	Subjects   []string
	Clock      Clock
	Publisher  Publisher
	Metrics    *metrics.Collectors
	PublishTop int
}

// Store holds every named board in memory. Each board has its own lock; the
// store lock only guards the board index.
type Store struct {
	mu     sync.RWMutex
	boards map[string]*board

	capacity   int
	clock      Clock
	publisher  Publisher
	metrics    *metrics.Collectors
	publishTop int
	logger     zerolog.Logger
}

// NewStore creates the fixed boards plus one board per subject.
func NewStore(logger zerolog.Logger, opts Options) *Store {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	clock := opts.Clock
	if clock == nil {
		clock = wallClock{}
	}
	publishTop := opts.PublishTop
	if publishTop <= 0 {
		publishTop = 10
	}

	s := &Store{
		boards:     make(map[string]*board),
		capacity:   capacity,
		clock:      clock,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		publishTop: publishTop,
		logger:     logger.With().Str("component", "leaderboard").Logger(),
	}

	now := clock.Now()
	for _, name := range []string{BoardDaily, BoardWeekly, BoardAllTime, BoardStreak, BoardSpeedRun} {
		b := newBoard(name, capacity)
		b.periodKey, b.nextReset = periodFor(name, now)
		s.boards[name] = b
	}
	for _, subject := range opts.Subjects {
		name := SubjectBoard(subject)
		s.boards[name] = newBoard(name, capacity)
	}
	return s
}

// SetPublisher replaces the publisher. Used when the hub is built after the store.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Boards lists board names in sorted order.
func (s *Store) Boards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.boards))
	for name := range s.boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a known board.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.boards[name]
	return ok
}

// lookup returns the board, creating subject boards on first use.
func (s *Store) lookup(name string) (*board, bool) {
	s.mu.RLock()
	b, ok := s.boards[name]
	s.mu.RUnlock()
	if ok {
		return b, true
	}
	if !strings.HasPrefix(name, subjectPrefix) || len(name) == len(subjectPrefix) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.boards[name]; ok {
		return b, true
	}
	b = newBoard(name, s.capacity)
	s.boards[name] = b
	return b, true
}

// Submit records score on one board. It returns true only when the board
// changed: a new entry made the cut, or the player beat their own score.
func (s *Store) Submit(boardName, playerID, username string, score int, at time.Time, extra map[string]interface{}) bool {
	b, ok := s.lookup(boardName)
	if !ok {
		s.logger.Warn().Str("board", boardName).Msg("submit to unknown board")
		return false
	}
	improved := b.submit(Entry{
		PlayerID:   playerID,
		Username:   username,
		Score:      score,
		AchievedAt: at,
		Extra:      extra,
	})
	if improved {
		s.metrics.BoardImproved(boardName)
	}
	return improved
}

// SubmitScore fans a finished game out to every board it qualifies for and
// returns the names of the boards that improved.
func (s *Store) SubmitScore(ctx context.Context, sub ScoreSubmission) []string {
	at := sub.At
	if at.IsZero() {
		at = s.clock.Now()
	}

	var improved []string
	try := func(board string, score int) {
		if s.Submit(board, sub.PlayerID, sub.Username, score, at, sub.Extra) {
			improved = append(improved, board)
		}
	}

	try(BoardDaily, sub.Score)
	try(BoardWeekly, sub.Score)
	try(BoardAllTime, sub.Score)
	if sub.Subject != "" {
		try(SubjectBoard(sub.Subject), sub.Score)
	}
	if sub.BestStreak > 0 {
		try(BoardStreak, sub.BestStreak)
	}
	if sub.PerfectGame && sub.AvgResponseSeconds > 0 {
		try(BoardSpeedRun, SpeedRunScore(sub.AvgResponseSeconds))
	}

	for _, name := range improved {
		s.publish(ctx, name)
	}
	return improved
}

// SpeedRunScore converts an average response time into a higher-is-better score.
func SpeedRunScore(avgResponseSeconds float64) int {
	score := 10000 - int(math.Round(avgResponseSeconds*1000))
	if score < 0 {
		return 0
	}
	return score
}

// Leaderboard returns a page of a board and the board's total size.
func (s *Store) Leaderboard(boardName string, limit, offset int) ([]Entry, int, error) {
	b, ok := s.lookup(boardName)
	if !ok {
		return nil, 0, fmt.Errorf("leaderboard %q: %w", boardName, ErrUnknownBoard)
	}
	entries, total := b.page(limit, offset)
	return entries, total, nil
}

// PlayerRank returns the 1-indexed rank of the player, 0 when absent.
func (s *Store) PlayerRank(boardName, playerID string) int {
	b, ok := s.lookup(boardName)
	if !ok {
		return 0
	}
	return b.rank(playerID)
}

// SurroundingEntries returns up to rng entries either side of the player and
// the rank of the first returned entry.
func (s *Store) SurroundingEntries(boardName, playerID string, rng int) ([]Entry, int) {
	b, ok := s.lookup(boardName)
	if !ok {
		return []Entry{}, 0
	}
	if rng < 0 {
		rng = 0
	}
	return b.surrounding(playerID, rng)
}

// NextReset returns when the board next clears, zero for boards that never do.
func (s *Store) NextReset(boardName string) time.Time {
	b, ok := s.lookup(boardName)
	if !ok {
		return time.Time{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextReset
}

// CheckResets clears periodic boards whose period has ended, either because
// the date or week changed or because the scheduled reset time passed.
func (s *Store) CheckResets(ctx context.Context, now time.Time) []string {
	var reset []string
	for _, name := range []string{BoardDaily, BoardWeekly} {
		b, ok := s.lookup(name)
		if !ok {
			continue
		}
		key, next := periodFor(name, now)

		b.mu.RLock()
		due := b.periodKey != key || !now.Before(b.nextReset)
		b.mu.RUnlock()
		if !due {
			continue
		}

		b.clear(key, next)
		reset = append(reset, name)
		s.logger.Info().
			Str("board", name).
			Str("period", key).
			Time("next_reset", next).
			Msg("leaderboard reset")
	}
	for _, name := range reset {
		s.publish(ctx, name)
	}
	return reset
}

// DirtySnapshots returns boards changed since the previous call.
func (s *Store) DirtySnapshots() []BoardSnapshot {
	var out []BoardSnapshot
	for _, name := range s.Boards() {
		b, _ := s.lookup(name)
		if snap, ok := b.takeDirty(); ok {
			out = append(out, snap)
		}
	}
	return out
}

// Snapshots returns every board.
func (s *Store) Snapshots() []BoardSnapshot {
	names := s.Boards()
	out := make([]BoardSnapshot, 0, len(names))
	for _, name := range names {
		b, _ := s.lookup(name)
		out = append(out, b.snapshot())
	}
	return out
}

// Restore loads boards saved by a SnapshotStore and then applies any resets
// that came due while the process was down.
func (s *Store) Restore(ctx context.Context, store SnapshotStore) error {
	snaps, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("restore leaderboards: %w", err)
	}
	for _, snap := range snaps {
		b, ok := s.lookup(snap.Name)
		if !ok {
			s.logger.Warn().Str("board", snap.Name).Msg("skipping snapshot of unknown board")
			continue
		}
		b.restore(snap)
	}
	s.CheckResets(ctx, s.clock.Now())
	s.logger.Info().Int("boards", len(snaps)).Msg("leaderboards restored")
	return nil
}

// Payload renders a board page as a leaderboard-data message payload.
func (s *Store) Payload(boardName string, limit, offset int, playerID string) (ws.LeaderboardDataPayload, error) {
	entries, total, err := s.Leaderboard(boardName, limit, offset)
	if err != nil {
		return ws.LeaderboardDataPayload{}, err
	}
	payload := ws.LeaderboardDataPayload{
		Board:   boardName,
		Entries: toWSEntries(entries, offset+1),
		Total:   total,
	}
	if playerID != "" {
		payload.PlayerRank = s.PlayerRank(boardName, playerID)
	}
	if next := s.NextReset(boardName); !next.IsZero() {
		payload.NextReset = next.UTC().Format(time.RFC3339)
	}
	return payload, nil
}

func (s *Store) publish(ctx context.Context, boardName string) {
	s.mu.RLock()
	pub := s.publisher
	s.mu.RUnlock()
	if pub == nil {
		return
	}
	payload, err := s.Payload(boardName, s.publishTop, 0, "")
	if err != nil {
		return
	}
	if err := pub.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Str("board", boardName).Msg("leaderboard publish failed")
	}
}
