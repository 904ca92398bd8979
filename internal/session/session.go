// Package session runs solo games: ten falling questions answered by hitting
// answer blocks, followed by a final fall and the game-over summary.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/profile"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// ContextSession tags question and score payloads sent from solo sessions.
const ContextSession = "session"

// Session states. A player without a session is idle.
const (
	StateQuestion  = "question"
	StateCooldown  = "cooldown"
	StateFinalFall = "final_fall"
)

const persistTimeout = 10 * time.Second

var (
	// ErrNoSession is returned for events from players without a session.
	ErrNoSession = errors.New("player has no active session")
	// ErrNotAccepting is returned for answers outside the question phase and
	// landings outside the final fall.
	ErrNotAccepting = errors.New("session is not accepting this event")
	// ErrAlreadyInActivity is returned when the player is queued or playing elsewhere.
	ErrAlreadyInActivity = errors.New("player is already in another activity")
)

// Options configures the controller. Zero values take gameplay defaults.
type Options struct {
	SettleDelay    time.Duration // default 1.5s
	LandingTimeout time.Duration // default 3s
	MaxQuestions   int           // default 10
	BaseFallSpeed  float64       // default 1.0
	BaseGravity    float64       // default 9.8
	MaxSpeedFactor float64       // default 2.0

	Scheduler   schedule.Scheduler
	Sender      ws.Sender
	Physics     PhysicsSink
	Scoring     *scoring.Engine
	Leaderboard *leaderboard.Store
	Profiles    *profile.Service
	Metrics     *metrics.Collectors
}

// View is the public state of a session.
type View struct {
	SessionID     string `json:"session_id"`
	Subject       string `json:"subject"`
	Difficulty    string `json:"difficulty"`
	State         string `json:"state"`
	QuestionIndex int    `json:"question_index"`
	MaxQuestions  int    `json:"max_questions"`
	TotalScore    int    `json:"total_score"`
	CurrentStreak int    `json:"current_streak"`
	Answered      int    `json:"answered"`
}

// Controller owns every solo session. The controller lock guards the index
// only; each session has its own lock and question generation happens under
// it, so one slow provider never stalls other players.
type Controller struct {
	registry  *activity.Registry
	questions *question.Registry
	tracker   *scoring.SessionTracker
	sched     schedule.Scheduler
	sender    ws.Sender
	physics   PhysicsSink
	board     *leaderboard.Store
	profiles  *profile.Service
	metrics   *metrics.Collectors
	logger    zerolog.Logger

	settle    time.Duration
	landing   time.Duration
	maxQ      int
	fallSpeed float64
	gravity   float64
	maxFactor float64

	mu       sync.RWMutex
	sessions map[string]*gameSession
}

type gameSession struct {
	mu sync.Mutex

	id         string
	playerID   string
	username   string
	subject    string
	difficulty string
	category   string
	state      string
	answered   int
	streak     int
	current    question.Question
	timer      schedule.Timer
	done       bool
}

// NewController creates a session controller.
func NewController(registry *activity.Registry, questions *question.Registry, logger zerolog.Logger, opts Options) *Controller {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if opts.LandingTimeout <= 0 {
		opts.LandingTimeout = 3 * time.Second
	}
	if opts.MaxQuestions <= 0 {
		opts.MaxQuestions = 10
	}
	if opts.BaseFallSpeed <= 0 {
		opts.BaseFallSpeed = 1.0
	}
	if opts.BaseGravity <= 0 {
		opts.BaseGravity = 9.8
	}
	if opts.MaxSpeedFactor <= 0 {
		opts.MaxSpeedFactor = 2.0
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	if opts.Scoring == nil {
		opts.Scoring = scoring.NewEngine(scoring.DefaultScoringConfig())
	}
	if opts.Physics == nil {
		opts.Physics = MessageSink{Sender: opts.Sender}
	}
	return &Controller{
		registry:  registry,
		questions: questions,
		tracker:   scoring.NewSessionTracker(opts.Scoring, opts.Scheduler, logger),
		sched:     opts.Scheduler,
		sender:    opts.Sender,
		physics:   opts.Physics,
		board:     opts.Leaderboard,
		profiles:  opts.Profiles,
		metrics:   opts.Metrics,
		logger:    logger.With().Str("component", "session").Logger(),
		settle:    opts.SettleDelay,
		landing:   opts.LandingTimeout,
		maxQ:      opts.MaxQuestions,
		fallSpeed: opts.BaseFallSpeed,
		gravity:   opts.BaseGravity,
		maxFactor: opts.MaxSpeedFactor,
		sessions:  make(map[string]*gameSession),
	}
}

// StartGame begins a solo game and asks the first question. A player who
// already has a session starts over without persisting the abandoned one.
func (c *Controller) StartGame(ctx context.Context, playerID, username, subject, difficulty, category string) (View, error) {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		subject = question.SubjectMath
	}
	if !c.questions.Has(subject) {
		return View{}, question.ErrUnknownSubject
	}
	s := &gameSession{
		id:         uuid.NewString(),
		playerID:   playerID,
		username:   username,
		subject:    subject,
		difficulty: question.NormalizeDifficulty(difficulty),
		category:   strings.TrimSpace(category),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.install(s); err != nil {
		return View{}, err
	}
	c.tracker.RestartSession(playerID)

	c.logger.Info().
		Str("player_id", playerID).
		Str("session_id", s.id).
		Str("subject", s.subject).
		Str("difficulty", s.difficulty).
		Msg("session started")
	c.applyPhysics(s)
	c.ask(ctx, s)
	return c.view(s), nil
}

// SubmitAnswer judges a typed answer to the open question.
func (c *Controller) SubmitAnswer(playerID, answer string) error {
	return c.answer(playerID, answer, false)
}

// AnswerBlockHit judges the answer printed on the block the player collided with.
func (c *Controller) AnswerBlockHit(playerID, answerValue string) error {
	return c.answer(playerID, answerValue, false)
}

// MissedBlocks is reported when the player fell past every block. It counts
// as a wrong answer.
func (c *Controller) MissedBlocks(playerID string) error {
	return c.answer(playerID, "", true)
}

func (c *Controller) answer(playerID, answer string, missed bool) error {
	s, ok := c.get(playerID)
	if !ok {
		c.logger.Warn().Str("player_id", playerID).Msg("answer without session")
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrNoSession
	}
	if s.state != StateQuestion {
		return ErrNotAccepting
	}

	correct := !missed && c.questions.IsCorrect(s.current, answer)
	c.metrics.Answer(ContextSession, correct)
	if correct {
		b := c.tracker.RecordCorrect(playerID, s.difficulty)
		s.streak++
		_ = ws.Notify(c.sender, ws.TypeScoreUpdate, ws.ScoreUpdatePayload{
			ContextID:            s.id,
			BasePoints:           b.BasePoints,
			DifficultyMultiplier: b.DifficultyMultiplier,
			SpeedBonus:           b.SpeedBonus,
			StreakMultiplier:     b.StreakMultiplier,
			Points:               b.TotalPoints,
			BonusTag:             b.BonusTag,
			TotalScore:           c.totalScore(playerID),
			Streak:               s.streak,
		}, playerID)
	} else {
		c.tracker.RecordWrong(playerID)
		s.streak = 0
		_ = ws.Notify(c.sender, ws.TypeWrongAnswer, ws.WrongAnswerPayload{
			ContextID:     s.id,
			Submitted:     answer,
			CorrectAnswer: s.current.CorrectAnswer,
			Explanation:   s.current.Explanation,
			TotalScore:    c.totalScore(playerID),
		}, playerID)
	}

	s.answered++
	s.state = StateCooldown
	c.applyPhysics(s)
	s.timer = c.sched.AfterFunc(c.settle, func() { c.settled(s) })
	return nil
}

// settled runs after the cooldown: the next question, or the final fall
// once enough questions were answered.
func (c *Controller) settled(s *gameSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.state != StateCooldown {
		return
	}
	s.timer = nil
	if s.answered < c.maxQ {
		c.ask(context.Background(), s)
		return
	}
	s.state = StateFinalFall
	s.timer = c.sched.AfterFunc(c.landing, func() {
		if err := c.land(s); err == nil {
			c.logger.Debug().Str("player_id", s.playerID).Msg("landing timed out")
		}
	})
}

// Landed is the engine's report that the player touched the ground after the
// final fall. It ends the session and records the result.
func (c *Controller) Landed(playerID string) error {
	s, ok := c.get(playerID)
	if !ok {
		return ErrNoSession
	}
	return c.land(s)
}

func (c *Controller) land(s *gameSession) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.state != StateFinalFall {
		s.mu.Unlock()
		return ErrNotAccepting
	}
	s.close()
	// Scoring state ends before the claim is released.
	summary, ok := c.tracker.EndSession(s.playerID, s.difficulty)
	c.drop(s)
	s.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	c.metrics.SessionEnded()
	c.logger.Info().
		Str("player_id", s.playerID).
		Str("session_id", s.id).
		Int("score", summary.TotalScore).
		Bool("perfect", summary.PerfectGame).
		Msg("session finished")
	c.finish(s, summary)
	return nil
}

// QuitGame abandons the session without recording anything.
func (c *Controller) QuitGame(playerID string) bool {
	s, ok := c.get(playerID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.close()
	c.tracker.EndSession(playerID, s.difficulty)
	c.drop(s)
	c.metrics.SessionEnded()
	c.logger.Info().Str("player_id", playerID).Str("session_id", s.id).Int("answered", s.answered).Msg("session abandoned")
	return true
}

// State returns the player's session, if any.
func (c *Controller) State(playerID string) (View, bool) {
	s, ok := c.get(playerID)
	if !ok {
		return View{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return View{}, false
	}
	return c.view(s), true
}

// Active reports how many sessions are running.
func (c *Controller) Active() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// ask generates and sends the next question. Callers hold s.mu.
func (c *Controller) ask(ctx context.Context, s *gameSession) {
	s.current = c.questions.Next(ctx, s.subject, s.difficulty, s.category)
	s.state = StateQuestion
	c.tracker.StartQuestion(s.playerID)

	_ = ws.Notify(c.sender, ws.TypeQuestion, ws.QuestionPayload{
		Context:    ContextSession,
		ContextID:  s.id,
		QuestionID: s.current.ID,
		Subject:    s.current.Subject,
		Category:   s.current.Category,
		Difficulty: s.current.Difficulty,
		Text:       s.current.Text,
		Index:      s.answered + 1,
		Total:      c.maxQ,
	}, s.playerID)
	_ = ws.Notify(c.sender, ws.TypeAnswerOptions, ws.AnswerOptionsPayload{
		ContextID:  s.id,
		QuestionID: s.current.ID,
		Options:    s.current.Options(nil),
	}, s.playerID)
}

// finish persists a completed game and sends the game-over summary.
func (c *Controller) finish(s *gameSession, sum scoring.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	over := ws.GameOverPayload{
		TotalScore:         sum.TotalScore,
		CorrectCount:       sum.CorrectCount,
		WrongCount:         sum.WrongCount,
		BestStreak:         sum.BestStreak,
		AvgResponseSeconds: sum.AvgResponseTime.Seconds(),
		PerfectGame:        sum.PerfectGame,
		Grade:              sum.Grade,
		XPEarned:           sum.XPEarned,
	}
	if c.board != nil {
		over.ImprovedBoards = c.board.SubmitScore(ctx, leaderboard.ScoreSubmission{
			PlayerID:           s.playerID,
			Username:           s.username,
			Score:              sum.TotalScore,
			Subject:            s.subject,
			BestStreak:         sum.BestStreak,
			PerfectGame:        sum.PerfectGame,
			AvgResponseSeconds: sum.AvgResponseTime.Seconds(),
			Extra:              map[string]interface{}{"mode": ContextSession, "difficulty": s.difficulty},
		})
		over.AllTimeRank = c.board.PlayerRank(leaderboard.BoardAllTime, s.playerID)
	}

	var unlocked []profile.Achievement
	if c.profiles != nil {
		unlocked = c.profiles.RecordGameResult(ctx, profile.GameResult{
			PlayerID: s.playerID,
			Username: s.username,
			Subject:  s.subject,
			Summary:  sum,
		})
	}

	_ = ws.Notify(c.sender, ws.TypeGameOver, over, s.playerID)
	for _, a := range unlocked {
		_ = ws.Notify(c.sender, ws.TypeAchievementUnlocked, ws.AchievementUnlockedPayload{
			AchievementID: a.ID,
			Title:         a.Title,
			Description:   a.Description,
		}, s.playerID)
	}
}

// applyPhysics pushes the fall speed for the current streak. Callers hold s.mu.
func (c *Controller) applyPhysics(s *gameSession) {
	p := PhysicsParams{
		Gravity:   c.gravity,
		FallSpeed: c.fallSpeed * speedFactor(s.streak, c.maxFactor),
	}
	if err := c.physics.ApplyPhysics(s.playerID, p); err != nil {
		c.logger.Debug().Err(err).Str("player_id", s.playerID).Msg("physics update failed")
	}
}

func (c *Controller) totalScore(playerID string) int {
	st, _ := c.tracker.SessionStats(playerID)
	return st.TotalScore
}

func (c *Controller) view(s *gameSession) View {
	st, _ := c.tracker.SessionStats(s.playerID)
	return View{
		SessionID:     s.id,
		Subject:       s.subject,
		Difficulty:    s.difficulty,
		State:         s.state,
		QuestionIndex: min(s.answered+1, c.maxQ),
		MaxQuestions:  c.maxQ,
		TotalScore:    st.TotalScore,
		CurrentStreak: s.streak,
		Answered:      s.answered,
	}
}

func (c *Controller) get(playerID string) (*gameSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[playerID]
	return s, ok
}

// install indexes s, the locked new session, and claims the player. A
// previous session is closed under its own lock so that its end path and the
// restart cannot interleave.
func (c *Controller) install(s *gameSession) error {
	for {
		old, hadOld := c.get(s.playerID)
		if hadOld {
			old.mu.Lock()
		}
		c.mu.Lock()
		if cur, ok := c.sessions[s.playerID]; ok != hadOld || cur != old {
			// Ended or replaced while we waited for its lock.
			c.mu.Unlock()
			if hadOld {
				old.mu.Unlock()
			}
			continue
		}
		if err := c.registry.Claim(s.playerID, sessionActivity(s.playerID)); err != nil {
			c.mu.Unlock()
			if hadOld {
				old.mu.Unlock()
			}
			return ErrAlreadyInActivity
		}
		c.sessions[s.playerID] = s
		c.mu.Unlock()

		if hadOld {
			old.close()
			old.mu.Unlock()
			c.logger.Info().Str("player_id", s.playerID).Str("session_id", old.id).Msg("session restarted")
		} else {
			c.metrics.SessionStarted()
		}
		return nil
	}
}

// drop removes s from the index and frees the player when s was still the
// indexed session. Callers hold s.mu.
func (c *Controller) drop(s *gameSession) {
	c.mu.Lock()
	current := c.sessions[s.playerID] == s
	if current {
		delete(c.sessions, s.playerID)
	}
	c.mu.Unlock()
	if current {
		c.registry.Release(s.playerID, sessionActivity(s.playerID))
	}
}

// close stops the session's timer and marks it finished. Callers hold s.mu.
func (s *gameSession) close() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.done = true
}

func sessionActivity(playerID string) activity.Activity {
	return activity.Activity{Kind: activity.KindSession, ID: playerID}
}
