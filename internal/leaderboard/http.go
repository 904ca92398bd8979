package leaderboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
)

// HTTPHandler exposes REST endpoints for leaderboard queries.
type HTTPHandler struct {
	store   *Store
	archive Archive
	logger  zerolog.Logger
}

// NewHTTPHandler constructs a leaderboard HTTP handler. archive may be nil.
func NewHTTPHandler(store *Store, archive Archive, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		store:   store,
		archive: archive,
		logger:  logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// Register mounts the leaderboard routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/leaderboards", h.HandleList)
	mux.HandleFunc("GET /v1/leaderboards/{board}", h.HandleGet)
	mux.HandleFunc("GET /v1/leaderboards/{board}/players/{player}", h.HandlePlayer)
	mux.HandleFunc("GET /v1/leaderboards/{board}/history", h.HandleHistory)
}

// HandleList responds with the known board names.
func (h *HTTPHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"boards": h.store.Boards()})
}

// HandleGet responds with a page of a board.
// Route: GET /v1/leaderboards/{board}?limit=10&offset=0
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	board := r.PathValue("board")
	limit := queryInt(r, "limit", 10, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 100)

	payload, err := h.store.Payload(board, limit, offset, r.URL.Query().Get("player_id"))
	if errors.Is(err, ErrUnknownBoard) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeUnknownBoard, "unknown leaderboard")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("board", board).Msg("leaderboard fetch failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, "failed to fetch leaderboard")
		return
	}
	writeJSON(w, payload)
}

// HandlePlayer responds with a player's rank and the entries around it.
// Route: GET /v1/leaderboards/{board}/players/{player}?range=3
func (h *HTTPHandler) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	board := r.PathValue("board")
	playerID := r.PathValue("player")
	if !h.store.Has(board) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeUnknownBoard, "unknown leaderboard")
		return
	}

	rng := queryInt(r, "range", 3, 0, 25)
	entries, firstRank := h.store.SurroundingEntries(board, playerID, rng)
	writeJSON(w, map[string]interface{}{
		"board":     board,
		"player_id": playerID,
		"rank":      h.store.PlayerRank(board, playerID),
		"entries":   toWSEntries(entries, firstRank),
	})
}

// HandleHistory responds with the newest archived copy of a board, such as
// yesterday's daily board after a reset.
// Route: GET /v1/leaderboards/{board}/history
func (h *HTTPHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	board := r.PathValue("board")
	if h.archive == nil {
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "leaderboard archive not configured")
		return
	}
	snap, err := h.archive.Latest(r.Context(), board)
	if err != nil {
		h.logger.Warn().Err(err).Str("board", board).Msg("snapshot fetch failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, "failed to fetch leaderboard history")
		return
	}
	if snap == nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no archived snapshot")
		return
	}
	writeJSON(w, map[string]interface{}{
		"board":        snap.Board,
		"generated_at": snap.GeneratedAt.UTC().Format(time.RFC3339),
		"entries":      toWSEntries(snap.Entries, 1),
	})
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
