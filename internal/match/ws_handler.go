package match

import (
	"net/http"

	"github.com/gokatarajesh/falling-trivia/internal/auth"
	"github.com/gokatarajesh/falling-trivia/internal/auth/jwt"
	"github.com/gokatarajesh/falling-trivia/internal/server"
)

// HandleWebSocket authenticates the player token and upgrades the request.
// The token comes from a bearer header or the token query parameter.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := jwt.FromRequestValues(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket token validation failed")
		auth.RespondTokenError(w, err)
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, claims.PlayerID, claims.Username)
}
