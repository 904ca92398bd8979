package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

func TestRedisUpdatesReachClients(t *testing.T) {
	_, client := newRedis(t)
	rec := ws.NewRecorder()

	broadcaster := NewBroadcaster(client, rec, "lb:test", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	select {
	case <-broadcaster.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster never subscribed")
	}

	store, _, _ := newTestStore(t, 100)
	store.SetPublisher(NewRedisPublisher(client, "lb:test"))
	store.Submit(BoardAllTime, "p1", "Pat", 10, testStart, nil)
	store.SubmitScore(ctx, ScoreSubmission{PlayerID: "p2", Username: "Sam", Score: 50})

	require.Eventually(t, func() bool {
		return len(rec.Broadcasts()) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	var found bool
	for _, msg := range rec.Broadcasts() {
		assert.Equal(t, ws.TypeLeaderboardData, msg.Type)
		var payload ws.LeaderboardDataPayload
		require.NoError(t, msg.Decode(&payload))
		if payload.Board == BoardAllTime {
			found = true
			require.Len(t, payload.Entries, 2)
			assert.Equal(t, "p2", payload.Entries[0].PlayerID)
			assert.Equal(t, 1, payload.Entries[0].Rank)
		}
	}
	assert.True(t, found)
}

func TestDirectPublisherBroadcasts(t *testing.T) {
	rec := ws.NewRecorder()
	store, _, _ := newTestStore(t, 100)
	store.SetPublisher(NewDirectPublisher(rec))

	store.SubmitScore(context.Background(), ScoreSubmission{PlayerID: "p1", Score: 5})

	assert.Len(t, rec.Broadcasts(), 3)
}
