package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
)

var day1 = time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, playerID string) (*Profile, error) {
	args := m.Called(ctx, playerID)
	p, _ := args.Get(0).(*Profile)
	return p, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, p *Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func newService(t *testing.T, store Store) (*Service, *schedule.Manual) {
	t.Helper()
	clock := schedule.NewManual(day1)
	svc := NewService(store, zerolog.Nop(), Options{Clock: clock, SaveBackoff: time.Millisecond})
	return svc, clock
}

func game(score, correct, wrong, streak int) GameResult {
	return GameResult{
		PlayerID: "p1",
		Username: "Pat",
		Subject:  "math",
		Summary: scoring.Summary{
			TotalScore:      score,
			CorrectCount:    correct,
			WrongCount:      wrong,
			BestStreak:      streak,
			AvgResponseTime: 2 * time.Second,
			XPEarned:        score / 10,
		},
	}
}

func achievementIDs(list []Achievement) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestDecodeKeepsDefaultsForMissingFields(t *testing.T) {
	p, err := Decode("p1", []byte(`{"username":"Pat","stats":{"games_played":3}}`))
	require.NoError(t, err)

	assert.Equal(t, "p1", p.PlayerID)
	assert.Equal(t, 3, p.Stats.GamesPlayed)
	assert.Equal(t, 1, p.Stats.Level)
	assert.NotNil(t, p.Achievements)
	assert.NotNil(t, p.Rewards)
	assert.NotNil(t, p.Balances)
	assert.NotNil(t, p.Tournaments.History)
}

func TestRecordGameResultUpdatesStatsAndAchievements(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newService(t, store)
	ctx := context.Background()

	unlocked := svc.RecordGameResult(ctx, game(1200, 6, 4, 5))
	assert.Equal(t, []string{AchievementFirstGame, AchievementStreak5}, achievementIDs(unlocked))

	res := game(5600, 10, 0, 10)
	res.Summary.PerfectGame = true
	res.Won = true
	unlocked = svc.RecordGameResult(ctx, res)
	assert.Equal(t, []string{AchievementStreak10, AchievementPerfectGame, AchievementScore5000}, achievementIDs(unlocked))

	assert.Empty(t, svc.RecordGameResult(ctx, res), "achievements unlock once")

	p := svc.Load(ctx, "p1")
	assert.Equal(t, "Pat", p.Username)
	assert.Equal(t, 3, p.Stats.GamesPlayed)
	assert.Equal(t, 2, p.Stats.GamesWon)
	assert.Equal(t, 12400, p.Stats.TotalScore)
	assert.Equal(t, 5600, p.Stats.BestScore)
	assert.Equal(t, 10, p.Stats.BestStreak)
	assert.Equal(t, 2, p.Stats.PerfectGames)
	assert.Equal(t, 1240, p.Stats.TotalXP)
	assert.Equal(t, 2, p.Stats.Level)
	assert.Equal(t, 2.0, p.Stats.FastestAvgResponse)
	assert.Equal(t, day1, p.UpdatedAt)
}

func TestDailyStreak(t *testing.T) {
	svc, clock := newService(t, NewMemoryStore())
	ctx := context.Background()

	svc.RecordGameResult(ctx, game(100, 1, 0, 1))
	svc.RecordGameResult(ctx, game(100, 1, 0, 1))
	assert.Equal(t, 1, svc.Load(ctx, "p1").Streak.Current)

	clock.Advance(24 * time.Hour)
	svc.RecordGameResult(ctx, game(100, 1, 0, 1))
	clock.Advance(24 * time.Hour)
	svc.RecordGameResult(ctx, game(100, 1, 0, 1))
	st := svc.Load(ctx, "p1").Streak
	assert.Equal(t, 3, st.Current)
	assert.Equal(t, 3, st.Longest)

	clock.Advance(72 * time.Hour)
	svc.RecordGameResult(ctx, game(100, 1, 0, 1))
	st = svc.Load(ctx, "p1").Streak
	assert.Equal(t, 1, st.Current)
	assert.Equal(t, 3, st.Longest)
	assert.Equal(t, "2025-03-10", st.LastPlayedDate)
}

func TestGrantRewardIsIdempotent(t *testing.T) {
	svc, _ := newService(t, NewMemoryStore())
	ctx := context.Background()

	ok, err := svc.GrantReward(ctx, "p1", "tournament:t1:1", Reward{Kind: "coins", Amount: 500})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.GrantReward(ctx, "p1", "tournament:t1:1", Reward{Kind: "coins", Amount: 500})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.GrantReward(ctx, "p1", "tournament:t2:1", Reward{Kind: "coins", Amount: 100})
	require.NoError(t, err)
	assert.True(t, ok)

	p := svc.Load(ctx, "p1")
	assert.Equal(t, 600, p.Balances["coins"])
	assert.Len(t, p.Rewards, 2)
}

func TestRecordTournamentResultKeepsRecentHistory(t *testing.T) {
	svc, _ := newService(t, NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < MaxTournamentHistory+5; i++ {
		placement := 0
		if i == 3 {
			placement = 2
		}
		svc.RecordTournamentResult(ctx, "p1", "Pat", TournamentRecord{TournamentID: fmt.Sprintf("t%d", i), Placement: placement})
	}
	unlocked := svc.RecordTournamentResult(ctx, "p1", "Pat", TournamentRecord{TournamentID: "final", Placement: 1})
	assert.Equal(t, []string{AchievementTournamentChampion}, achievementIDs(unlocked))

	p := svc.Load(ctx, "p1")
	assert.Equal(t, MaxTournamentHistory+6, p.Tournaments.Played)
	assert.Equal(t, 1, p.Tournaments.Won)
	assert.Equal(t, 1, p.Tournaments.RunnerUp)
	require.Len(t, p.Tournaments.History, MaxTournamentHistory)
	assert.Equal(t, "final", p.Tournaments.History[0].TournamentID)
	assert.Equal(t, day1, p.Tournaments.History[0].FinishedAt)
	assert.Contains(t, p.Achievements, AchievementTournamentFinalist)
}

func TestSaveIsRetried(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, "p1").Return(nil, nil)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Twice()
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	svc, _ := newService(t, store)
	ok, err := svc.GrantReward(context.Background(), "p1", "k", Reward{Kind: "coins", Amount: 1})

	require.NoError(t, err)
	assert.True(t, ok)
	store.AssertNumberOfCalls(t, "Save", 3)
}

func TestSaveGivesUpAfterAttempts(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, "p1").Return(nil, nil)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("down"))

	svc, _ := newService(t, store)
	ok, err := svc.GrantReward(context.Background(), "p1", "k", Reward{Kind: "coins", Amount: 1})

	require.Error(t, err)
	assert.False(t, ok)
	store.AssertNumberOfCalls(t, "Save", 3)
	assert.NotPanics(t, func() { svc.RecordGameResult(context.Background(), game(10, 1, 0, 1)) })
}

func TestLoadFailureUsesDefaultsAndSkipsUpdates(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, "p1").Return(nil, errors.New("timeout"))

	svc, _ := newService(t, store)
	p := svc.Load(context.Background(), "p1")
	assert.Equal(t, 1, p.Stats.Level)
	assert.Zero(t, p.Stats.GamesPlayed)

	assert.Empty(t, svc.RecordGameResult(context.Background(), game(10, 1, 0, 1)))
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRedisAndCachedStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	rs := NewRedisStore(client, 0)
	missing, err := rs.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	primary := NewMemoryStore()
	cached := NewCachedStore(primary, NewRedisStore(client, time.Hour))
	svc, _ := newService(t, cached)
	svc.RecordGameResult(ctx, game(300, 3, 0, 3))

	assert.True(t, mr.Exists("profile:p1"))
	assert.Equal(t, time.Hour, mr.TTL("profile:p1"))

	fromPrimary, err := primary.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 300, fromPrimary.Stats.TotalScore)

	mr.Del("profile:p1")
	p, err := cached.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 300, p.Stats.TotalScore)
	assert.True(t, mr.Exists("profile:p1"), "miss refills the cache")
}
