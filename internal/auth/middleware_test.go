package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
)

func serve(t *testing.T, tokens *jwt.Manager, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			seen = claims.PlayerID
		}
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	Middleware(tokens, zerolog.Nop())(RequireAuth(next)).ServeHTTP(rr, req)
	return rr, seen
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body httperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestMiddlewareInjectsClaims(t *testing.T) {
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("secret")})
	token, err := tokens.Issue("p1", "Pat")
	require.NoError(t, err)

	rr, seen := serve(t, tokens, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "p1", seen)
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("secret")})

	rr, _ := serve(t, tokens, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, httperrors.ErrCodeAuthenticationRequired, errorCode(t, rr))
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("secret")})
	other := jwt.NewManager(jwt.TokenConfig{Secret: []byte("other")})
	forged, err := other.Issue("p1", "Pat")
	require.NoError(t, err)

	rr, _ := serve(t, tokens, "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, httperrors.ErrCodeInvalidToken, errorCode(t, rr))

	short := jwt.NewManager(jwt.TokenConfig{Secret: []byte("secret"), TTL: -time.Minute})
	expired, err := short.Issue("p1", "Pat")
	require.NoError(t, err)
	rr, _ = serve(t, tokens, "Bearer "+expired)
	assert.Equal(t, httperrors.ErrCodeTokenExpired, errorCode(t, rr))
}
