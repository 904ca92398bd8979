package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/schedule"
)

// NextDailyReset returns the next UTC midnight strictly after now.
func NextDailyReset(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}

// NextWeeklyReset returns the next UTC Sunday 00:00 strictly after now.
func NextWeeklyReset(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := (7 - int(now.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return midnight.AddDate(0, 0, days)
}

// dayKey identifies the UTC calendar day.
func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// weekKey identifies the Sunday-started UTC week by its first day.
func weekKey(now time.Time) string {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -int(now.Weekday()))
	return "week-" + start.Format("2006-01-02")
}

// periodFor returns the period key and next reset for a board, or zero
// values for boards that never reset.
func periodFor(board string, now time.Time) (string, time.Time) {
	switch board {
	case BoardDaily:
		return dayKey(now), NextDailyReset(now)
	case BoardWeekly:
		return weekKey(now), NextWeeklyReset(now)
	default:
		return "", time.Time{}
	}
}

// ResetWorker runs CheckResets on a fixed interval so periodic boards stay
// correct across wall-clock jumps and restarts.
type ResetWorker struct {
	store    *Store
	sched    schedule.Scheduler
	interval time.Duration
	logger   zerolog.Logger
}

// NewResetWorker checks store every interval, capped at one minute. A nil
// sched uses the wall clock.
func NewResetWorker(store *Store, sched schedule.Scheduler, interval time.Duration, logger zerolog.Logger) *ResetWorker {
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	if sched == nil {
		sched = schedule.NewReal()
	}
	return &ResetWorker{
		store:    store,
		sched:    sched,
		interval: interval,
		logger:   logger.With().Str("component", "leaderboard_reset_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *ResetWorker) Run(ctx context.Context) error {
	w.store.CheckResets(ctx, w.sched.Now())
	for {
		tick := make(chan struct{})
		timer := w.sched.AfterFunc(w.interval, func() { close(tick) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-tick:
			if reset := w.store.CheckResets(ctx, w.sched.Now()); len(reset) > 0 {
				w.logger.Debug().Strs("boards", reset).Msg("periodic boards reset")
			}
		}
	}
}
