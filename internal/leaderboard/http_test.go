package leaderboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

func newTestMux(t *testing.T, archive Archive) (*http.ServeMux, *Store) {
	t.Helper()
	store, _, _ := newTestStore(t, 100)
	mux := http.NewServeMux()
	NewHTTPHandler(store, archive, zerolog.Nop()).Register(mux)
	return mux, store
}

func TestHandleGetBoard(t *testing.T) {
	mux, store := newTestMux(t, nil)
	store.Submit(BoardAllTime, "a", "Ann", 300, testStart, nil)
	store.Submit(BoardAllTime, "b", "Bob", 200, testStart, nil)
	store.Submit(BoardAllTime, "c", "Cat", 100, testStart, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/all_time?limit=2&offset=1&player_id=c", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload ws.LeaderboardDataPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 3, payload.Total)
	assert.Equal(t, 3, payload.PlayerRank)
	require.Len(t, payload.Entries, 2)
	assert.Equal(t, 2, payload.Entries[0].Rank)
	assert.Equal(t, "Bob", payload.Entries[0].Username)
}

func TestHandleGetUnknownBoard(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/monthly", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePlayer(t *testing.T) {
	mux, store := newTestMux(t, nil)
	store.Submit("subject:math", "a", "Ann", 300, testStart, nil)
	store.Submit("subject:math", "b", "Bob", 200, testStart, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/subject:math/players/b?range=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rank    int                   `json:"rank"`
		Entries []ws.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Rank)
	assert.Len(t, body.Entries, 2)
}

func TestHandleHistory(t *testing.T) {
	archive := &fakeArchive{inserted: map[string][]Entry{BoardDaily: {{PlayerID: "a", Score: 10, AchievedAt: testStart}}}}
	mux, _ := newTestMux(t, archive)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/daily/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/weekly/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	noArchive, _ := newTestMux(t, nil)
	rec = httptest.NewRecorder()
	noArchive.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboards/daily/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
