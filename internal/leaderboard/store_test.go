package leaderboard

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/schedule"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// Wednesday.
var testStart = time.Date(2025, 3, 5, 15, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	updates []ws.LeaderboardDataPayload
}

func (p *recordingPublisher) Publish(_ context.Context, u ws.LeaderboardDataPayload) error {
	p.updates = append(p.updates, u)
	return nil
}

func newTestStore(t *testing.T, capacity int) (*Store, *schedule.Manual, *recordingPublisher) {
	t.Helper()
	clock := schedule.NewManual(testStart)
	pub := &recordingPublisher{}
	store := NewStore(zerolog.Nop(), Options{
		Capacity:  capacity,
		Subjects:  []string{"math", "history"},
		Clock:     clock,
		Publisher: pub,
	})
	return store, clock, pub
}

func scores(entries []Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Score
	}
	return out
}

func TestSubmitKeepsOneEntryPerPlayerSortedDescending(t *testing.T) {
	store, _, _ := newTestStore(t, 20)
	rnd := rand.New(rand.NewSource(99))

	for i := 0; i < 2000; i++ {
		player := fmt.Sprintf("p%d", rnd.Intn(40))
		store.Submit(BoardAllTime, player, player, rnd.Intn(5000), testStart, nil)

		entries, total, err := store.Leaderboard(BoardAllTime, 0, 0)
		require.NoError(t, err)
		require.LessOrEqual(t, total, 20)

		seen := map[string]bool{}
		for j, e := range entries {
			require.False(t, seen[e.PlayerID], "duplicate %s", e.PlayerID)
			seen[e.PlayerID] = true
			if j > 0 {
				require.GreaterOrEqual(t, entries[j-1].Score, e.Score)
			}
		}
	}
}

func TestSubmitOnlyStrictImprovements(t *testing.T) {
	store, _, _ := newTestStore(t, 100)

	assert.True(t, store.Submit(BoardDaily, "a", "Ann", 500, testStart, nil))
	assert.True(t, store.Submit(BoardDaily, "b", "Bob", 300, testStart, nil))
	assert.False(t, store.Submit(BoardDaily, "a", "Ann", 500, testStart, nil))
	assert.False(t, store.Submit(BoardDaily, "a", "Ann", 100, testStart, nil))
	assert.Equal(t, 1, store.PlayerRank(BoardDaily, "a"))

	assert.True(t, store.Submit(BoardDaily, "b", "Bob", 700, testStart, nil))
	assert.Equal(t, 1, store.PlayerRank(BoardDaily, "b"))
	assert.Equal(t, 2, store.PlayerRank(BoardDaily, "a"))
	assert.Equal(t, 0, store.PlayerRank(BoardDaily, "nobody"))
}

func TestTiesKeepEarlierAchieverAhead(t *testing.T) {
	store, _, _ := newTestStore(t, 100)

	store.Submit(BoardWeekly, "first", "First", 400, testStart, nil)
	store.Submit(BoardWeekly, "second", "Second", 400, testStart.Add(time.Minute), nil)
	store.Submit(BoardWeekly, "third", "Third", 400, testStart.Add(2*time.Minute), nil)

	entries, _, _ := store.Leaderboard(BoardWeekly, 10, 0)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].PlayerID)
	assert.Equal(t, "second", entries[1].PlayerID)
	assert.Equal(t, "third", entries[2].PlayerID)
}

func TestCapacityTrimsLowestScores(t *testing.T) {
	store, _, _ := newTestStore(t, 3)

	store.Submit(BoardAllTime, "a", "a", 10, testStart, nil)
	store.Submit(BoardAllTime, "b", "b", 20, testStart, nil)
	store.Submit(BoardAllTime, "c", "c", 30, testStart, nil)
	assert.False(t, store.Submit(BoardAllTime, "d", "d", 5, testStart, nil), "below the cut")
	assert.True(t, store.Submit(BoardAllTime, "e", "e", 25, testStart, nil))

	entries, total, _ := store.Leaderboard(BoardAllTime, 10, 0)
	assert.Equal(t, 3, total)
	assert.Equal(t, []int{30, 25, 20}, scores(entries))
}

func TestLeaderboardPaging(t *testing.T) {
	store, _, _ := newTestStore(t, 100)
	for i := 1; i <= 5; i++ {
		store.Submit(BoardAllTime, fmt.Sprintf("p%d", i), "", i*100, testStart, nil)
	}

	entries, total, err := store.Leaderboard(BoardAllTime, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int{400, 300}, scores(entries))

	entries, _, _ = store.Leaderboard(BoardAllTime, 2, 10)
	assert.Empty(t, entries)

	_, _, err = store.Leaderboard("monthly", 10, 0)
	assert.ErrorIs(t, err, ErrUnknownBoard)
}

func TestSurroundingEntries(t *testing.T) {
	store, _, _ := newTestStore(t, 100)
	for i := 1; i <= 10; i++ {
		store.Submit(BoardAllTime, fmt.Sprintf("p%d", i), "", i*10, testStart, nil)
	}

	// p5 has score 50 → rank 6.
	entries, first := store.SurroundingEntries(BoardAllTime, "p5", 2)
	assert.Equal(t, 4, first)
	assert.Equal(t, []int{70, 60, 50, 40, 30}, scores(entries))

	entries, first = store.SurroundingEntries(BoardAllTime, "p10", 2)
	assert.Equal(t, 1, first)
	assert.Equal(t, []int{100, 90, 80}, scores(entries))

	entries, first = store.SurroundingEntries(BoardAllTime, "ghost", 2)
	assert.Empty(t, entries)
	assert.Zero(t, first)
}

func TestSubmitScoreFansOut(t *testing.T) {
	store, _, pub := newTestStore(t, 100)

	improved := store.SubmitScore(context.Background(), ScoreSubmission{
		PlayerID:           "p1",
		Username:           "Pat",
		Score:              1985,
		Subject:            "math",
		BestStreak:         10,
		PerfectGame:        true,
		AvgResponseSeconds: 2.5,
	})

	assert.ElementsMatch(t, []string{BoardDaily, BoardWeekly, BoardAllTime, "subject:math", BoardStreak, BoardSpeedRun}, improved)
	assert.Len(t, pub.updates, 6)

	entries, _, _ := store.Leaderboard(BoardSpeedRun, 1, 0)
	assert.Equal(t, 7500, entries[0].Score)
	entries, _, _ = store.Leaderboard(BoardStreak, 1, 0)
	assert.Equal(t, 10, entries[0].Score)
	assert.Equal(t, testStart, entries[0].AchievedAt)

	improved = store.SubmitScore(context.Background(), ScoreSubmission{
		PlayerID: "p1", Username: "Pat", Score: 100, Subject: "math",
	})
	assert.Empty(t, improved)
}

func TestSubmitScoreSkipsConditionalBoards(t *testing.T) {
	store, _, _ := newTestStore(t, 100)

	improved := store.SubmitScore(context.Background(), ScoreSubmission{
		PlayerID:           "p1",
		Score:              300,
		Subject:            "geography",
		BestStreak:         0,
		PerfectGame:        false,
		AvgResponseSeconds: 1,
	})
	assert.ElementsMatch(t, []string{BoardDaily, BoardWeekly, BoardAllTime, "subject:geography"}, improved)
	assert.True(t, store.Has("subject:geography"), "subject boards are created on demand")
}

func TestSpeedRunScore(t *testing.T) {
	assert.Equal(t, 10000, SpeedRunScore(0))
	assert.Equal(t, 8766, SpeedRunScore(1.2344))
	assert.Equal(t, 0, SpeedRunScore(12))
}

func TestNextResets(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC), NextDailyReset(testStart))
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), NextWeeklyReset(testStart))

	sunday := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), NextWeeklyReset(sunday))
	saturdayNight := time.Date(2025, 3, 8, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, sunday, NextWeeklyReset(saturdayNight))
}

func TestCheckResetsClearsPeriodicBoards(t *testing.T) {
	store, clock, _ := newTestStore(t, 100)
	store.Submit(BoardDaily, "p1", "", 100, testStart, nil)
	store.Submit(BoardWeekly, "p1", "", 100, testStart, nil)
	store.Submit(BoardAllTime, "p1", "", 100, testStart, nil)

	assert.Empty(t, store.CheckResets(context.Background(), clock.Now()))

	clock.Set(time.Date(2025, 3, 6, 0, 0, 1, 0, time.UTC))
	assert.Equal(t, []string{BoardDaily}, store.CheckResets(context.Background(), clock.Now()))
	assert.Zero(t, store.PlayerRank(BoardDaily, "p1"))
	assert.Equal(t, 1, store.PlayerRank(BoardWeekly, "p1"))

	clock.Set(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.ElementsMatch(t, []string{BoardDaily, BoardWeekly}, store.CheckResets(context.Background(), clock.Now()))
	assert.Zero(t, store.PlayerRank(BoardWeekly, "p1"))
	assert.Equal(t, 1, store.PlayerRank(BoardAllTime, "p1"))
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), store.NextReset(BoardWeekly))
}

func TestCheckResetsHandlesBackwardClockJump(t *testing.T) {
	store, _, _ := newTestStore(t, 100)
	store.Submit(BoardDaily, "p1", "", 100, testStart, nil)

	// The date string changed even though the reset time has not passed.
	reset := store.CheckResets(context.Background(), testStart.AddDate(0, 0, -2))
	assert.Contains(t, reset, BoardDaily)
	assert.Zero(t, store.PlayerRank(BoardDaily, "p1"))
}

func TestResetWorkerRunsOnSchedule(t *testing.T) {
	store, clock, _ := newTestStore(t, 100)
	store.Submit(BoardDaily, "p1", "", 100, testStart, nil)
	store.Submit(BoardAllTime, "p1", "", 100, testStart, nil)

	w := NewResetWorker(store, clock, 30*time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	armed := func() bool { return clock.Pending() == 1 }
	require.Eventually(t, armed, time.Second, time.Millisecond)

	clock.Advance(30 * time.Second)
	require.Eventually(t, armed, time.Second, time.Millisecond)
	assert.Equal(t, 1, store.PlayerRank(BoardDaily, "p1"), "same day keeps the board")

	clock.Set(time.Date(2025, 3, 6, 0, 0, 5, 0, time.UTC))
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return store.PlayerRank(BoardDaily, "p1") == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, store.PlayerRank(BoardAllTime, "p1"))

	require.Eventually(t, armed, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, clock.Pending())
}
