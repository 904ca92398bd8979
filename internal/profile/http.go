package profile

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/auth"
)

// HTTPHandler serves the authenticated player's own profile.
type HTTPHandler struct {
	service      *Service
	authenticate func(http.Handler) http.Handler
	logger       zerolog.Logger
}

// NewHTTPHandler wraps the profile routes with authenticate, normally
// auth.Middleware.
func NewHTTPHandler(service *Service, authenticate func(http.Handler) http.Handler, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:      service,
		authenticate: authenticate,
		logger:       logger.With().Str("component", "profile_http").Logger(),
	}
}

// Register mounts the profile routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /v1/me/profile", h.authenticate(auth.RequireAuth(http.HandlerFunc(h.HandleMe))))
}

// HandleMe responds with the caller's profile, or defaults when they have
// never played.
func (h *HTTPHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	p := h.service.Load(r.Context(), claims.PlayerID)
	if p.Username == "" {
		p.Username = claims.Username
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Warn().Err(err).Str("player_id", claims.PlayerID).Msg("encode profile")
	}
}
