package scoring

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock supplies the current time; schedule.Scheduler satisfies it.
type Clock interface {
	Now() time.Time
}

// SessionState is the running score of one player's session.
type SessionState struct {
	CurrentStreak     int             `json:"current_streak"`
	BestStreak        int             `json:"best_streak"`
	TotalScore        int             `json:"total_score"`
	CorrectCount      int             `json:"correct_count"`
	WrongCount        int             `json:"wrong_count"`
	ResponseTimes     []time.Duration `json:"response_times"`
	QuestionStartTime time.Time       `json:"question_start_time"`
}

// Summary is the write-once rollup produced when a session ends.
type Summary struct {
	TotalScore      int           `json:"total_score"`
	CorrectCount    int           `json:"correct_count"`
	WrongCount      int           `json:"wrong_count"`
	BestStreak      int           `json:"best_streak"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	PerfectGame     bool          `json:"perfect_game"`
	PerfectBonus    int           `json:"perfect_bonus"`
	Accuracy        float64       `json:"accuracy"`
	Grade           string        `json:"grade"`
	XPEarned        int           `json:"xp_earned"`
}

// TotalQuestions is the number of answers recorded in the session.
func (s Summary) TotalQuestions() int {
	return s.CorrectCount + s.WrongCount
}

// SessionTracker owns one SessionState per active player.
type SessionTracker struct {
	engine *Engine
	clock  Clock
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*SessionState
}

// NewSessionTracker creates a tracker scoring with engine and timing with clock.
func NewSessionTracker(engine *Engine, clock Clock, logger zerolog.Logger) *SessionTracker {
	return &SessionTracker{
		engine:   engine,
		clock:    clock,
		logger:   logger.With().Str("component", "scoring").Logger(),
		sessions: make(map[string]*SessionState),
	}
}

// StartSession creates a fresh state. It returns false and leaves the
// existing state untouched when the player already has a session.
func (t *SessionTracker) StartSession(playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[playerID]; exists {
		return false
	}
	t.sessions[playerID] = &SessionState{}
	return true
}

// RestartSession discards any existing state and starts over.
func (t *SessionTracker) RestartSession(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[playerID] = &SessionState{}
}

// StartQuestion marks the moment the next question was presented.
func (t *SessionTracker) StartQuestion(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[playerID]
	if !ok {
		t.logger.Warn().Str("player_id", playerID).Msg("start question without session")
		return
	}
	s.QuestionStartTime = t.clock.Now()
}

// RecordCorrect scores a correct answer and extends the streak. Unknown
// players get a zero breakdown.
func (t *SessionTracker) RecordCorrect(playerID, difficulty string) Breakdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[playerID]
	if !ok {
		t.logger.Warn().Str("player_id", playerID).Msg("record correct without session")
		return Breakdown{}
	}

	rt := t.takeResponseTime(s)
	s.CurrentStreak++
	if s.CurrentStreak > s.BestStreak {
		s.BestStreak = s.CurrentStreak
	}
	b := t.engine.Calculate(difficulty, rt, s.CurrentStreak)
	s.TotalScore += b.TotalPoints
	s.CorrectCount++
	s.ResponseTimes = append(s.ResponseTimes, rt)
	return b
}

// RecordWrong resets the streak. The total score is never reduced.
func (t *SessionTracker) RecordWrong(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[playerID]
	if !ok {
		t.logger.Warn().Str("player_id", playerID).Msg("record wrong without session")
		return
	}

	s.ResponseTimes = append(s.ResponseTimes, t.takeResponseTime(s))
	s.CurrentStreak = 0
	s.WrongCount++
}

// takeResponseTime returns the time since StartQuestion, or 0 when the
// question was never started, and clears the reference point.
func (t *SessionTracker) takeResponseTime(s *SessionState) time.Duration {
	if s.QuestionStartTime.IsZero() {
		return 0
	}
	rt := t.clock.Now().Sub(s.QuestionStartTime)
	s.QuestionStartTime = time.Time{}
	if rt < 0 {
		return 0
	}
	return rt
}

// EndSession finalizes and destroys the player's session. The bool is false
// for unknown players.
func (t *SessionTracker) EndSession(playerID, difficulty string) (Summary, bool) {
	t.mu.Lock()
	s, ok := t.sessions[playerID]
	delete(t.sessions, playerID)
	t.mu.Unlock()

	if !ok {
		t.logger.Warn().Str("player_id", playerID).Msg("end session without session")
		return Summary{}, false
	}
	return t.summarize(s, difficulty), true
}

func (t *SessionTracker) summarize(s *SessionState, difficulty string) Summary {
	total := s.CorrectCount + s.WrongCount
	sum := Summary{
		TotalScore:   s.TotalScore,
		CorrectCount: s.CorrectCount,
		WrongCount:   s.WrongCount,
		BestStreak:   s.BestStreak,
	}

	if bonus := t.engine.PerfectBonus(difficulty, s.CorrectCount, total); bonus > 0 {
		sum.PerfectGame = true
		sum.PerfectBonus = bonus
		sum.TotalScore += bonus
	}

	if len(s.ResponseTimes) > 0 {
		var acc time.Duration
		for _, rt := range s.ResponseTimes {
			acc += rt
		}
		sum.AvgResponseTime = acc / time.Duration(len(s.ResponseTimes))
	}
	if total > 0 {
		sum.Accuracy = float64(s.CorrectCount) / float64(total)
	}

	sum.Grade = Grade(sum.Accuracy, sum.AvgResponseTime.Seconds(), sum.BestStreak)
	sum.XPEarned = t.engine.XP(sum.TotalScore)
	return sum
}

// SessionStats returns a copy of the player's state for UI polling.
func (t *SessionTracker) SessionStats(playerID string) (SessionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[playerID]
	if !ok {
		return SessionState{}, false
	}
	cp := *s
	cp.ResponseTimes = append([]time.Duration(nil), s.ResponseTimes...)
	return cp, true
}

// Active reports how many sessions are open.
func (t *SessionTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
