// Package activity is the single authority on what a player is currently
// doing. Queues, quick matches, tournaments and solo sessions all claim a
// player here before admitting them, so membership stays exclusive.
package activity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Kind identifies the type of activity holding a player.
type Kind string

const (
	KindQueue      Kind = "queue"
	KindQuickMatch Kind = "quick_match"
	KindTournament Kind = "tournament"
	KindSession    Kind = "session"
)

// Activity is a claim on a player: the kind plus the owning resource ID.
type Activity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (a Activity) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

var (
	// ErrBusy is returned when the player already holds another activity.
	ErrBusy = errors.New("player is already in another activity")
	// ErrNotHeld is returned when a transfer does not match the current claim.
	ErrNotHeld = errors.New("player does not hold the expected activity")
)

// Registry maps player IDs to their single current activity.
type Registry struct {
	mu      sync.Mutex
	current map[string]Activity
	logger  zerolog.Logger
}

// NewRegistry creates an empty activity registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		current: make(map[string]Activity),
		logger:  logger.With().Str("component", "activity").Logger(),
	}
}

// Claim marks the player as busy with a. Claiming the exact activity the
// player already holds succeeds.
func (r *Registry) Claim(playerID string, a Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.current[playerID]; ok {
		if held == a {
			return nil
		}
		r.logger.Debug().
			Str("player_id", playerID).
			Str("held", held.String()).
			Str("requested", a.String()).
			Msg("claim rejected")
		return ErrBusy
	}
	r.current[playerID] = a
	return nil
}

// Release frees the player only if a is still their current claim, so a
// stale timer can never release a newer claim.
func (r *Registry) Release(playerID string, a Activity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.current[playerID]; ok && held == a {
		delete(r.current, playerID)
		return true
	}
	return false
}

// Transfer atomically moves a claim from one activity to another.
func (r *Registry) Transfer(playerID string, from, to Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.current[playerID]; !ok || held != from {
		return ErrNotHeld
	}
	r.current[playerID] = to
	return nil
}

// Current returns the player's activity, if any.
func (r *Registry) Current(playerID string) (Activity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.current[playerID]
	return a, ok
}

// Busy reports whether the player holds any activity.
func (r *Registry) Busy(playerID string) bool {
	_, ok := r.Current(playerID)
	return ok
}

// Count returns the number of players holding an activity of kind k.
func (r *Registry) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.current {
		if a.Kind == k {
			n++
		}
	}
	return n
}
