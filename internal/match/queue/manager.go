package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// Player counts a quick match can be formed for.
const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Statuses carried by quick-match-update messages sent from the queue.
const (
	StatusQueued  = "queued"
	StatusMatched = "matched"
	StatusExpired = "expired"
	StatusLeft    = "left"
)

var (
	// ErrAlreadyQueued is returned when the player already waits in this queue.
	ErrAlreadyQueued = errors.New("player is already queued")
	// ErrBusy is returned when the player is in another queue, match,
	// tournament or session.
	ErrBusy = errors.New("player is busy elsewhere")
	// ErrInvalidRequest is returned for bad subject or player count values.
	ErrInvalidRequest = errors.New("invalid queue request")
)

// Request asks for a seat in a quick match.
type Request struct {
	PlayerID    string
	Username    string
	Subject     string
	Difficulty  string
	PlayerCount int
}

// Key returns the queue key subject|difficulty|playerCount.
func (r Request) Key() string {
	return Key(r.Subject, r.Difficulty, r.PlayerCount)
}

// Key builds a queue key from its parts.
func Key(subject, difficulty string, playerCount int) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(subject), question.NormalizeDifficulty(difficulty), playerCount)
}

// Entry is a waiting player.
type Entry struct {
	PlayerID string
	Username string
	QueuedAt time.Time

	token uint64
	timer schedule.Timer
}

// Formation is a full queue group handed to the quick match runner. The
// players' activity claims already point at MatchID.
type Formation struct {
	MatchID    string
	Key        string
	Subject    string
	Difficulty string
	Players    []Entry
}

// FormationHandler starts a match for a formed group. It is called outside
// every queue lock.
type FormationHandler func(ctx context.Context, f Formation)

// Options configures the manager. Zero values take defaults.
type Options struct {
	Timeout   time.Duration // default 60s
	Scheduler schedule.Scheduler
	Sender    ws.Sender
	Metrics   *metrics.Collectors
}

type waitQueue struct {
	mu         sync.Mutex
	key        string
	subject    string
	difficulty string
	size       int
	entries    []*Entry
}

// Manager holds one FIFO queue per key. Membership is tracked in the
// activity registry, which also keeps players out of other activities
// while they wait.
type Manager struct {
	registry *activity.Registry
	sched    schedule.Scheduler
	sender   ws.Sender
	metrics  *metrics.Collectors
	logger   zerolog.Logger
	timeout  time.Duration

	seq atomic.Uint64

	mu       sync.RWMutex
	queues   map[string]*waitQueue
	onFormed FormationHandler
}

// NewManager creates a matchmaking queue manager.
func NewManager(registry *activity.Registry, logger zerolog.Logger, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	return &Manager{
		registry: registry,
		sched:    opts.Scheduler,
		sender:   opts.Sender,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "matchmaking").Logger(),
		timeout:  opts.Timeout,
		queues:   make(map[string]*waitQueue),
	}
}

// OnFormation sets the handler that receives formed groups.
func (m *Manager) OnFormation(h FormationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFormed = h
}

func queueActivity(key string) activity.Activity {
	return activity.Activity{Kind: activity.KindQueue, ID: key}
}

// Enqueue adds the player to the keyed queue. When the queue reaches the
// requested player count, exactly that many players are drained FIFO into a
// new match. It returns true when a match was formed by this call.
func (m *Manager) Enqueue(ctx context.Context, req Request) (bool, error) {
	if req.PlayerID == "" || strings.TrimSpace(req.Subject) == "" {
		return false, fmt.Errorf("%w: player and subject are required", ErrInvalidRequest)
	}
	if req.PlayerCount < MinPlayers || req.PlayerCount > MaxPlayers {
		return false, fmt.Errorf("%w: player count must be %d-%d", ErrInvalidRequest, MinPlayers, MaxPlayers)
	}

	key := req.Key()
	act := queueActivity(key)
	if cur, ok := m.registry.Current(req.PlayerID); ok {
		if cur == act {
			return false, ErrAlreadyQueued
		}
		return false, ErrBusy
	}
	if err := m.registry.Claim(req.PlayerID, act); err != nil {
		return false, ErrBusy
	}

	q := m.queue(key, req)
	now := m.sched.Now()

	token := m.seq.Add(1)
	q.mu.Lock()
	entry := &Entry{PlayerID: req.PlayerID, Username: req.Username, QueuedAt: now, token: token}
	q.entries = append(q.entries, entry)

	var formed *Formation
	if len(q.entries) >= q.size {
		formed = m.drain(q)
	} else {
		pid := req.PlayerID
		entry.timer = m.sched.AfterFunc(m.timeout, func() { m.expire(key, pid, token) })
	}
	waiting := snapshot(q)
	q.mu.Unlock()

	m.metrics.SetQueueDepth(key, len(waiting))
	m.logger.Info().
		Str("player_id", req.PlayerID).
		Str("queue_key", key).
		Int("waiting", len(waiting)).
		Msg("player enqueued")

	m.notifyPositions(key, q.size, waiting)
	if formed != nil {
		m.handOff(ctx, *formed)
		return true, nil
	}
	return false, nil
}

// drain removes the first q.size entries and moves their claims to a new
// match. Callers hold q.mu.
func (m *Manager) drain(q *waitQueue) *Formation {
	group := q.entries[:q.size]
	q.entries = append([]*Entry(nil), q.entries[q.size:]...)

	f := &Formation{
		MatchID:    uuid.NewString(),
		Key:        q.key,
		Subject:    q.subject,
		Difficulty: q.difficulty,
	}
	from := queueActivity(q.key)
	to := activity.Activity{Kind: activity.KindQuickMatch, ID: f.MatchID}
	for _, e := range group {
		if e.timer != nil {
			e.timer.Stop()
		}
		if err := m.registry.Transfer(e.PlayerID, from, to); err != nil {
			m.logger.Error().Err(err).
				Str("player_id", e.PlayerID).
				Str("queue_key", q.key).
				Msg("queued player lost its claim, dropping from match")
			continue
		}
		f.Players = append(f.Players, *e)
	}
	return f
}

func (m *Manager) handOff(ctx context.Context, f Formation) {
	m.metrics.QuickMatchFormed(f.Subject, f.Difficulty)
	m.logger.Info().
		Str("match_id", f.MatchID).
		Str("queue_key", f.Key).
		Int("players", len(f.Players)).
		Msg("quick match formed")

	players := make([]ws.Player, len(f.Players))
	ids := make([]string, len(f.Players))
	for i, e := range f.Players {
		players[i] = ws.Player{PlayerID: e.PlayerID, Username: e.Username}
		ids[i] = e.PlayerID
	}
	_ = ws.Notify(m.sender, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{
		MatchID:  f.MatchID,
		QueueKey: f.Key,
		Status:   StatusMatched,
		Players:  players,
	}, ids...)

	m.mu.RLock()
	h := m.onFormed
	m.mu.RUnlock()
	if h == nil {
		m.logger.Warn().Str("match_id", f.MatchID).Msg("no formation handler, releasing players")
		act := activity.Activity{Kind: activity.KindQuickMatch, ID: f.MatchID}
		for _, id := range ids {
			m.registry.Release(id, act)
		}
		return
	}
	h(ctx, f)
}

// Dequeue removes the player from whichever queue holds them. It is a
// no-op when the player is not queued.
func (m *Manager) Dequeue(playerID string) bool {
	cur, ok := m.registry.Current(playerID)
	if !ok || cur.Kind != activity.KindQueue {
		return false
	}
	removed, q, waiting := m.remove(cur.ID, playerID, 0)
	if !removed {
		return false
	}
	m.metrics.SetQueueDepth(cur.ID, len(waiting))
	m.logger.Info().Str("player_id", playerID).Str("queue_key", cur.ID).Msg("player dequeued")
	_ = ws.Notify(m.sender, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{QueueKey: cur.ID, Status: StatusLeft}, playerID)
	m.notifyPositions(cur.ID, q.size, waiting)
	return true
}

// expire fires when an enqueue's wait window ends. It only acts when the
// same enqueue (matched by token) is still waiting in that queue.
func (m *Manager) expire(key, playerID string, token uint64) {
	removed, q, waiting := m.remove(key, playerID, token)
	if !removed {
		return
	}
	m.metrics.SetQueueDepth(key, len(waiting))
	m.logger.Info().Str("player_id", playerID).Str("queue_key", key).Msg("queue wait expired")
	_ = ws.Notify(m.sender, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{QueueKey: key, Status: StatusExpired}, playerID)
	m.notifyPositions(key, q.size, waiting)
}

// remove drops the player's entry and releases the queue claim. A non-zero
// token must match the entry.
func (m *Manager) remove(key, playerID string, token uint64) (bool, *waitQueue, []Entry) {
	m.mu.RLock()
	q, ok := m.queues[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.PlayerID != playerID || (token != 0 && e.token != token) {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		m.registry.Release(playerID, queueActivity(key))
		return true, q, snapshot(q)
	}
	return false, q, nil
}

// Position returns the player's 1-based place in their queue, 0 if absent.
func (m *Manager) Position(playerID string) int {
	cur, ok := m.registry.Current(playerID)
	if !ok || cur.Kind != activity.KindQueue {
		return 0
	}
	m.mu.RLock()
	q, ok := m.queues[cur.ID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}

// Size returns how many players wait under key.
func (m *Manager) Size(key string) int {
	m.mu.RLock()
	q, ok := m.queues[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Waiting returns the players queued under key in FIFO order.
func (m *Manager) Waiting(key string) []string {
	m.mu.RLock()
	q, ok := m.queues[key]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.PlayerID
	}
	return out
}

// queue returns the queue for key, creating it on first use. Queues are
// kept after they drain so later arrivals reuse them.
func (m *Manager) queue(key string, req Request) *waitQueue {
	m.mu.RLock()
	q, ok := m.queues[key]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok = m.queues[key]; ok {
		return q
	}
	q = &waitQueue{
		key:        key,
		subject:    strings.ToLower(req.Subject),
		difficulty: question.NormalizeDifficulty(req.Difficulty),
		size:       req.PlayerCount,
	}
	m.queues[key] = q
	return q
}

func (m *Manager) notifyPositions(key string, size int, waiting []Entry) {
	for i, e := range waiting {
		_ = ws.Notify(m.sender, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{
			QueueKey: key,
			Status:   StatusQueued,
			Position: i + 1,
			Needed:   size - len(waiting),
		}, e.PlayerID)
	}
}

func snapshot(q *waitQueue) []Entry {
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}
