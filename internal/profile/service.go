package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
)

// Clock supplies the current time; schedule.Scheduler satisfies it.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// GameResult is one finished game as seen by a single player.
type GameResult struct {
	PlayerID string
	Username string
	Subject  string
	Summary  scoring.Summary
	Won      bool // multiplayer games only
}

// Options tunes the service. Zero values take defaults.
type Options struct {
	Clock        Clock
	Metrics      *metrics.Collectors
	SaveAttempts int           // default 3
	SaveBackoff  time.Duration // default 200ms, doubled per attempt
}

// Service loads, updates and saves profiles. Load failures fall back to
// defaults and save failures are retried, then logged and dropped, so
// gameplay never waits on a broken store for long.
type Service struct {
	store   Store
	clock   Clock
	metrics *metrics.Collectors
	logger  zerolog.Logger

	attempts int
	backoff  time.Duration

	loads singleflight.Group
	locks playerLocks
}

func NewService(store Store, logger zerolog.Logger, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.SaveAttempts <= 0 {
		opts.SaveAttempts = 3
	}
	if opts.SaveBackoff <= 0 {
		opts.SaveBackoff = 200 * time.Millisecond
	}
	return &Service{
		store:    store,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "profile").Logger(),
		attempts: opts.SaveAttempts,
		backoff:  opts.SaveBackoff,
		locks:    playerLocks{held: make(map[string]*playerLock)},
	}
}

// Load returns the player's profile, or defaults when it is missing or the
// store fails. Concurrent loads of one player share a single store read.
func (s *Service) Load(ctx context.Context, playerID string) *Profile {
	v, err, _ := s.loads.Do(playerID, func() (interface{}, error) {
		return s.store.Load(ctx, playerID)
	})
	return s.orDefault(playerID, v, err)
}

// loadFresh skips singleflight so an update never builds on a read that
// started before the previous update was saved. Unlike Load it reports
// errors, since saving defaults over an unreadable profile would wipe it.
func (s *Service) loadFresh(ctx context.Context, playerID string) (*Profile, error) {
	p, err := s.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return DefaultProfile(playerID), nil
	}
	return p, nil
}

func (s *Service) orDefault(playerID string, v interface{}, err error) *Profile {
	if err != nil {
		s.metrics.PersistenceFailed("profile_load")
		s.logger.Warn().Err(err).Str("player_id", playerID).Msg("profile load failed, using defaults")
		return DefaultProfile(playerID)
	}
	p, _ := v.(*Profile)
	if p == nil {
		return DefaultProfile(playerID)
	}
	return p.Clone()
}

// RecordGameResult folds a finished game into the profile and returns the
// achievements it unlocked.
func (s *Service) RecordGameResult(ctx context.Context, res GameResult) []Achievement {
	var unlocked []Achievement
	s.update(ctx, res.PlayerID, res.Username, "game_result", func(p *Profile, now time.Time) bool {
		sum := res.Summary
		st := &p.Stats
		st.GamesPlayed++
		if res.Won {
			st.GamesWon++
		}
		st.TotalScore += sum.TotalScore
		st.TotalCorrect += sum.CorrectCount
		st.TotalWrong += sum.WrongCount
		st.BestScore = max(st.BestScore, sum.TotalScore)
		st.BestStreak = max(st.BestStreak, sum.BestStreak)
		if sum.PerfectGame {
			st.PerfectGames++
		}
		st.TotalXP += sum.XPEarned
		st.Level = LevelForXP(st.TotalXP)
		if avg := sum.AvgResponseTime.Seconds(); avg > 0 && sum.TotalQuestions() > 0 {
			if st.FastestAvgResponse == 0 || avg < st.FastestAvgResponse {
				st.FastestAvgResponse = avg
			}
		}
		touchStreak(&p.Streak, now)
		unlocked = evaluate(p, now)
		return true
	})
	return unlocked
}

// RecordTournamentResult appends a tournament to the player's history.
func (s *Service) RecordTournamentResult(ctx context.Context, playerID, username string, rec TournamentRecord) []Achievement {
	var unlocked []Achievement
	s.update(ctx, playerID, username, "tournament_result", func(p *Profile, now time.Time) bool {
		if rec.FinishedAt.IsZero() {
			rec.FinishedAt = now
		}
		t := &p.Tournaments
		t.Played++
		switch rec.Placement {
		case 1:
			t.Won++
		case 2:
			t.RunnerUp++
		}
		t.History = append([]TournamentRecord{rec}, t.History...)
		if len(t.History) > MaxTournamentHistory {
			t.History = t.History[:MaxTournamentHistory]
		}
		unlocked = evaluate(p, now)
		return true
	})
	return unlocked
}

// GrantReward applies reward once per grant key. It returns false when the
// key was already granted, so repeated calls never double-grant.
func (s *Service) GrantReward(ctx context.Context, playerID, grantKey string, reward Reward) (bool, error) {
	granted := false
	err := s.update(ctx, playerID, "", "grant_reward", func(p *Profile, now time.Time) bool {
		if _, ok := p.Rewards[grantKey]; ok {
			return false
		}
		p.Rewards[grantKey] = GrantedReward{Reward: reward, GrantedAt: now}
		p.Balances[reward.Kind] += reward.Amount
		granted = true
		return true
	})
	if err != nil {
		return false, err
	}
	if granted {
		s.logger.Info().
			Str("player_id", playerID).
			Str("grant_key", grantKey).
			Str("kind", reward.Kind).
			Int("amount", reward.Amount).
			Msg("reward granted")
	}
	return granted, nil
}

// update serializes read-modify-write cycles per player. mutate returns
// false when nothing changed and the save can be skipped.
func (s *Service) update(ctx context.Context, playerID, username, op string, mutate func(p *Profile, now time.Time) bool) error {
	unlock := s.locks.lock(playerID)
	defer unlock()

	p, err := s.loadFresh(ctx, playerID)
	if err != nil {
		s.metrics.PersistenceFailed("profile_load")
		s.logger.Error().Err(err).Str("player_id", playerID).Str("op", op).Msg("profile load failed, update dropped")
		return err
	}
	if username != "" {
		p.Username = username
	}
	now := s.clock.Now().UTC()
	if !mutate(p, now) {
		return nil
	}
	p.UpdatedAt = now

	if err := s.save(ctx, p); err != nil {
		s.metrics.PersistenceFailed("profile_" + op)
		s.logger.Error().Err(err).Str("player_id", playerID).Str("op", op).Msg("profile save failed")
		return err
	}
	return nil
}

func (s *Service) save(ctx context.Context, p *Profile) error {
	backoff := retry.WithMaxRetries(uint64(s.attempts-1), retry.NewExponential(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.store.Save(ctx, p); err != nil {
			s.logger.Debug().Err(err).Str("player_id", p.PlayerID).Msg("profile save attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.PlayerID, err)
	}
	return nil
}

// touchStreak extends the daily streak when the previous game was
// yesterday and restarts it after a gap.
func touchStreak(st *DailyStreak, now time.Time) {
	today := now.Format("2006-01-02")
	if st.LastPlayedDate == today {
		return
	}
	if st.LastPlayedDate == now.AddDate(0, 0, -1).Format("2006-01-02") {
		st.Current++
	} else {
		st.Current = 1
	}
	st.LastPlayedDate = today
	st.Longest = max(st.Longest, st.Current)
}

func evaluate(p *Profile, now time.Time) []Achievement {
	var out []Achievement
	for _, r := range rules {
		if _, ok := p.Achievements[r.ID]; ok {
			continue
		}
		if r.unlocked(p) {
			p.Achievements[r.ID] = now
			out = append(out, r.Achievement)
		}
	}
	return out
}

type playerLock struct {
	sync.Mutex
	refs int
}

type playerLocks struct {
	mu   sync.Mutex
	held map[string]*playerLock
}

func (l *playerLocks) lock(playerID string) func() {
	l.mu.Lock()
	pl, ok := l.held[playerID]
	if !ok {
		pl = &playerLock{}
		l.held[playerID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.held, playerID)
		}
		l.mu.Unlock()
	}
}
