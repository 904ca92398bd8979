package tournament

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *harness, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHTTPHandler(h.orch, zerolog.Nop()).Register(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHTTPListAndGet(t *testing.T) {
	h := newHarness(t, nil)
	v := h.create(t, "p1", bracketConfig(8))

	rr := serve(t, h, http.MethodGet, "/v1/tournaments")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Tournaments []View `json:"tournaments"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Tournaments, 1)
	assert.Equal(t, v.ID, list.Tournaments[0].ID)

	rr = serve(t, h, http.MethodGet, "/v1/tournaments/"+v.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Spring Cup"`)
	assert.NotContains(t, rr.Body.String(), "invite_code")

	rr = serve(t, h, http.MethodGet, "/v1/tournaments/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHTTPResults(t *testing.T) {
	h := newHarness(t, nil)
	v := h.create(t, "p1", Config{Name: "Duel", Type: TypeQuickMatch, Subject: "quiz", MinParticipants: 2, MaxParticipants: 2})
	h.join(t, v.ID, "p2")
	for q := 0; q < 2; q++ {
		h.answer(t, "p2", "4")
		h.answer(t, "p1", "3")
	}

	rr := serve(t, h, http.MethodGet, "/v1/tournaments/results?limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Results []Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "p2", body.Results[0].WinnerID)
	assert.Equal(t, "p1", body.Results[0].RunnerUpID)

	noArchive := newHarness(t, func(o *Options) { o.Archive = nil })
	rr = serve(t, noArchive, http.MethodGet, "/v1/tournaments/results")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
