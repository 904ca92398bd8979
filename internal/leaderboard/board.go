package leaderboard

import (
	"sync"
	"time"
)

// Entry is one player's best score on a board.
type Entry struct {
	PlayerID   string                 `json:"player_id"`
	Username   string                 `json:"username"`
	Score      int                    `json:"score"`
	AchievedAt time.Time              `json:"achieved_at"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// board is a bounded, descending list with at most one entry per player.
type board struct {
	mu       sync.RWMutex
	name     string
	capacity int
	entries  []Entry

	// periodKey and nextReset are only used by boards that reset.
	periodKey string
	nextReset time.Time

	dirty bool
}

func newBoard(name string, capacity int) *board {
	return &board{name: name, capacity: capacity}
}

// submit records score for the player when it beats their current entry.
// Equal scores rank behind entries already on the board.
func (b *board) submit(e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := -1
	for i := range b.entries {
		if b.entries[i].PlayerID == e.PlayerID {
			existing = i
			break
		}
	}
	if existing >= 0 {
		if e.Score <= b.entries[existing].Score {
			return false
		}
		b.entries = append(b.entries[:existing], b.entries[existing+1:]...)
	}

	pos := len(b.entries)
	for i := range b.entries {
		if e.Score > b.entries[i].Score {
			pos = i
			break
		}
	}
	if pos >= b.capacity {
		return false
	}

	b.entries = append(b.entries, Entry{})
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = e
	if len(b.entries) > b.capacity {
		b.entries = b.entries[:b.capacity]
	}
	b.dirty = true
	return true
}

func (b *board) page(limit, offset int) ([]Entry, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := len(b.entries)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Entry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]Entry, end-offset)
	copy(out, b.entries[offset:end])
	return out, total
}

// rank is the 1-indexed position of the player, 0 when absent.
func (b *board) rank(playerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := range b.entries {
		if b.entries[i].PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}

func (b *board) surrounding(playerID string, rng int) ([]Entry, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := -1
	for i := range b.entries {
		if b.entries[i].PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []Entry{}, 0
	}
	start, end := idx-rng, idx+rng+1
	if start < 0 {
		start = 0
	}
	if end > len(b.entries) {
		end = len(b.entries)
	}
	out := make([]Entry, end-start)
	copy(out, b.entries[start:end])
	return out, start + 1
}

func (b *board) clear(periodKey string, nextReset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.periodKey = periodKey
	b.nextReset = nextReset
	b.dirty = true
}

func (b *board) snapshot() BoardSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	return BoardSnapshot{
		Name:      b.name,
		PeriodKey: b.periodKey,
		NextReset: b.nextReset,
		Entries:   entries,
	}
}

// takeDirty returns a snapshot and clears the dirty flag, or false when the
// board has not changed since the last call.
func (b *board) takeDirty() (BoardSnapshot, bool) {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return BoardSnapshot{}, false
	}
	b.dirty = false
	b.mu.Unlock()
	return b.snapshot(), true
}

func (b *board) restore(s BoardSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := s.Entries
	if len(entries) > b.capacity {
		entries = entries[:b.capacity]
	}
	b.entries = append([]Entry(nil), entries...)
	b.periodKey = s.PeriodKey
	b.nextReset = s.NextReset
}
