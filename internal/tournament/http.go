package tournament

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
)

// HTTPHandler exposes read-only tournament endpoints. Creating and joining
// happen over the WebSocket, where the player is authenticated.
type HTTPHandler struct {
	orch   *Orchestrator
	logger zerolog.Logger
}

func NewHTTPHandler(orch *Orchestrator, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		orch:   orch,
		logger: logger.With().Str("component", "tournament_http").Logger(),
	}
}

// Register mounts the tournament routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tournaments", h.HandleList)
	mux.HandleFunc("GET /v1/tournaments/results", h.HandleResults)
	mux.HandleFunc("GET /v1/tournaments/{id}", h.HandleGet)
}

// HandleList responds with public tournaments that are still open.
func (h *HTTPHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.orch.List()
	if list == nil {
		list = []View{}
	}
	writeJSON(w, map[string]interface{}{"tournaments": list})
}

// HandleGet responds with one tournament, bracket included.
// Route: GET /v1/tournaments/{id}
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := h.orch.Get(r.PathValue("id"))
	if !ok {
		httperrors.RespondNotFound(w, httperrors.ErrCodeTournamentNotFound, "tournament not found")
		return
	}
	writeJSON(w, v)
}

// HandleResults responds with recently archived results.
// Route: GET /v1/tournaments/results?limit=20
func (h *HTTPHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	if h.orch.archive == nil {
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "tournament archive not configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	results, err := h.orch.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("tournament results fetch failed")
		httperrors.RespondInternalError(w, "failed to fetch tournament results")
		return
	}
	if results == nil {
		results = []Result{}
	}
	writeJSON(w, map[string]interface{}{"results": results})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
