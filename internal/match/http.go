package match

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/match/queue"
	"github.com/gokatarajesh/falling-trivia/internal/session"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
)

// HTTPHandlers provides read-only REST views of queues, quick matches and
// what a player is currently doing.
type HTTPHandlers struct {
	registry *activity.Registry
	queue    *queue.Manager
	matches  *QuickMatchManager
	sessions *session.Controller
	logger   zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for match endpoints.
func NewHTTPHandlers(registry *activity.Registry, q *queue.Manager, matches *QuickMatchManager, sessions *session.Controller, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		registry: registry,
		queue:    q,
		matches:  matches,
		sessions: sessions,
		logger:   logger.With().Str("component", "match_http").Logger(),
	}
}

// Register mounts the routes on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/queues/{subject}/{difficulty}/{players}", h.GetQueue)
	mux.HandleFunc("GET /v1/quick-matches/{id}", h.GetQuickMatch)
	mux.HandleFunc("GET /v1/players/{player}/activity", h.GetActivity)
}

// GetQueue handles GET /v1/queues/{subject}/{difficulty}/{players}
func (h *HTTPHandlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	players, err := strconv.Atoi(r.PathValue("players"))
	if err != nil || players < queue.MinPlayers || players > queue.MaxPlayers {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQueueEntry, "players must be 2-4")
		return
	}
	key := queue.Key(r.PathValue("subject"), r.PathValue("difficulty"), players)
	waiting := h.queue.Waiting(key)
	if waiting == nil {
		waiting = []string{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue_key": key,
		"size":      h.queue.Size(key),
		"needed":    players,
		"waiting":   waiting,
	})
}

// GetQuickMatch handles GET /v1/quick-matches/{id}
func (h *HTTPHandlers) GetQuickMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, ok := h.matches.State(id)
	if !ok {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "quick match not found")
		return
	}
	standings, _ := h.matches.Standings(id)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"match":     state,
		"standings": standings,
	})
}

// GetActivity handles GET /v1/players/{player}/activity
func (h *HTTPHandlers) GetActivity(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player")
	cur, ok := h.registry.Current(playerID)
	if !ok {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"player_id": playerID, "busy": false})
		return
	}

	body := map[string]interface{}{
		"player_id": playerID,
		"busy":      true,
		"activity":  cur,
	}
	switch cur.Kind {
	case activity.KindQueue:
		body["position"] = h.queue.Position(playerID)
	case activity.KindSession:
		if v, ok := h.sessions.State(playerID); ok {
			body["session"] = v
		}
	}
	h.respondJSON(w, http.StatusOK, body)
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn().Err(err).Msg("encode response")
	}
}
