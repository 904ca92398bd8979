package match

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

func get(t *testing.T, he *handlerEnv, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	mux := http.NewServeMux()
	NewHTTPHandlers(he.registry, he.queue, he.matches, he.sessions, zerolog.Nop()).Register(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHTTPQueueAndActivity(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "a", ws.TypeJoinQueue, ws.JoinQueuePayload{Subject: "quiz", Difficulty: "hard", PlayerCount: 3})

	rr, body := get(t, he, "/v1/queues/quiz/hard/3")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "quiz|hard|3", body["queue_key"])
	assert.Equal(t, float64(1), body["size"])
	assert.Equal(t, []interface{}{"a"}, body["waiting"])

	rr, _ = get(t, he, "/v1/queues/quiz/hard/9")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	_, body = get(t, he, "/v1/players/a/activity")
	assert.Equal(t, true, body["busy"])
	assert.Equal(t, float64(1), body["position"])

	he.send(t, "s", ws.TypeStartGame, ws.StartGamePayload{Subject: "quiz"})
	_, body = get(t, he, "/v1/players/s/activity")
	sess, ok := body["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "question", sess["state"])

	_, body = get(t, he, "/v1/players/ghost/activity")
	assert.Equal(t, false, body["busy"])
}

func TestHTTPQuickMatch(t *testing.T) {
	he := newHandlerEnv(t, nil)
	id := he.form(t, "a", "b")

	rr, body := get(t, he, "/v1/quick-matches/"+id)
	require.Equal(t, http.StatusOK, rr.Code)
	match, ok := body["match"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, StatusCountdown, match["status"])
	assert.Len(t, body["standings"], 2)

	rr, _ = get(t, he, "/v1/quick-matches/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
