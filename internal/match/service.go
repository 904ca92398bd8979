package match

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	"github.com/gokatarajesh/falling-trivia/internal/match/queue"
	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/profile"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// Options configures quick matches. Zero values take gameplay defaults.
type Options struct {
	Countdown         time.Duration // default 5s
	QuestionTimeLimit time.Duration // default 15s
	ResultsGrace      time.Duration // default 10s
	Questions         int           // default 10

	Scheduler   schedule.Scheduler
	Sender      ws.Sender
	Scoring     *scoring.Engine
	Leaderboard *leaderboard.Store
	Profiles    *profile.Service
	Metrics     *metrics.Collectors
}

// QuickMatchManager runs matches formed by the matchmaking queue: a
// countdown, a fixed number of timed questions shared by every player, then
// standings, result persistence and cleanup.
type QuickMatchManager struct {
	registry  *activity.Registry
	questions *question.Registry
	engine    *scoring.Engine
	sched     schedule.Scheduler
	sender    ws.Sender
	board     *leaderboard.Store
	profiles  *profile.Service
	metrics   *metrics.Collectors
	logger    zerolog.Logger

	countdown time.Duration
	limit     time.Duration
	grace     time.Duration
	total     int

	mu      sync.RWMutex
	matches map[string]*quickMatch

	persisting sync.WaitGroup
}

type quickMatch struct {
	mu sync.Mutex

	id         string
	subject    string
	difficulty string
	status     string
	startedAt  time.Time
	total      int
	index      int // -1 until the first question
	winner     string
	racers     map[string]*racer
	order      []string

	current       question.Question
	questionStart time.Time
	answered      map[string]bool
	timer         schedule.Timer
}

// NewQuickMatchManager creates a runner for formed quick matches.
func NewQuickMatchManager(registry *activity.Registry, questions *question.Registry, logger zerolog.Logger, opts Options) *QuickMatchManager {
	if opts.Countdown <= 0 {
		opts.Countdown = 5 * time.Second
	}
	if opts.QuestionTimeLimit <= 0 {
		opts.QuestionTimeLimit = 15 * time.Second
	}
	if opts.ResultsGrace <= 0 {
		opts.ResultsGrace = 10 * time.Second
	}
	if opts.Questions <= 0 {
		opts.Questions = 10
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	if opts.Scoring == nil {
		opts.Scoring = scoring.NewEngine(scoring.DefaultScoringConfig())
	}
	return &QuickMatchManager{
		registry:  registry,
		questions: questions,
		engine:    opts.Scoring,
		sched:     opts.Scheduler,
		sender:    opts.Sender,
		board:     opts.Leaderboard,
		profiles:  opts.Profiles,
		metrics:   opts.Metrics,
		logger:    logger.With().Str("component", "quick_match").Logger(),
		countdown: opts.Countdown,
		limit:     opts.QuestionTimeLimit,
		grace:     opts.ResultsGrace,
		total:     opts.Questions,
		matches:   make(map[string]*quickMatch),
	}
}

// Start takes ownership of a formed group and begins the countdown. It is
// the queue's FormationHandler.
func (m *QuickMatchManager) Start(ctx context.Context, f queue.Formation) {
	qm := &quickMatch{
		id:         f.MatchID,
		subject:    f.Subject,
		difficulty: question.NormalizeDifficulty(f.Difficulty),
		status:     StatusWaiting,
		startedAt:  m.sched.Now(),
		total:      m.total,
		index:      -1,
		racers:     make(map[string]*racer, len(f.Players)),
	}
	for i, p := range f.Players {
		qm.racers[p.PlayerID] = &racer{PlayerID: p.PlayerID, Username: p.Username, joinOrder: i}
		qm.order = append(qm.order, p.PlayerID)
	}

	m.mu.Lock()
	m.matches[qm.id] = qm
	m.mu.Unlock()

	qm.mu.Lock()
	defer qm.mu.Unlock()

	qm.status = StatusCountdown
	players := make([]ws.Player, 0, len(qm.order))
	for _, id := range qm.order {
		players = append(players, ws.Player{PlayerID: id, Username: qm.racers[id].Username})
	}
	m.notify(qm, ws.TypeRaceLobby, ws.RaceLobbyPayload{
		MatchID:          qm.id,
		Players:          players,
		CountdownSeconds: int(m.countdown / time.Second),
		Subject:          qm.subject,
		Difficulty:       qm.difficulty,
	})
	m.notify(qm, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{
		MatchID:  qm.id,
		QueueKey: f.Key,
		Status:   StatusCountdown,
		Players:  players,
	})
	m.logger.Info().
		Str("match_id", qm.id).
		Str("subject", qm.subject).
		Str("difficulty", qm.difficulty).
		Int("players", len(qm.order)).
		Msg("quick match countdown")

	qm.timer = m.sched.AfterFunc(m.countdown, func() { m.begin(qm.id) })
}

func (m *QuickMatchManager) begin(matchID string) {
	qm, ok := m.get(matchID)
	if !ok {
		return
	}
	qm.mu.Lock()
	if qm.status != StatusCountdown {
		qm.mu.Unlock()
		return
	}
	qm.status = StatusPlaying
	finished := m.advanceLocked(qm)
	qm.mu.Unlock()

	if finished {
		m.finish(qm)
	}
}

// advanceLocked moves to the next question, or reports true when the last
// question has been played. Callers hold qm.mu.
func (m *QuickMatchManager) advanceLocked(qm *quickMatch) bool {
	if qm.timer != nil {
		qm.timer.Stop()
		qm.timer = nil
	}
	qm.index++
	if qm.index >= qm.total || qm.activeCount() == 0 {
		qm.status = StatusResults
		return true
	}

	qm.current = m.questions.Next(context.Background(), qm.subject, qm.difficulty, "")
	qm.questionStart = m.sched.Now()
	qm.answered = make(map[string]bool, len(qm.racers))

	m.notify(qm, ws.TypeQuestion, ws.QuestionPayload{
		Context:          ContextQuickMatch,
		ContextID:        qm.id,
		QuestionID:       qm.current.ID,
		Subject:          qm.current.Subject,
		Category:         qm.current.Category,
		Difficulty:       qm.current.Difficulty,
		Text:             qm.current.Text,
		Index:            qm.index + 1,
		Total:            qm.total,
		TimeLimitSeconds: int(m.limit / time.Second),
	})
	m.notify(qm, ws.TypeAnswerOptions, ws.AnswerOptionsPayload{
		ContextID:  qm.id,
		QuestionID: qm.current.ID,
		Options:    qm.current.Options(nil),
	})

	index := qm.index
	qm.timer = m.sched.AfterFunc(m.limit, func() { m.timeUp(qm.id, index) })
	return false
}

// timeUp closes question index. Players who did not answer get an implicit
// wrong answer.
func (m *QuickMatchManager) timeUp(matchID string, index int) {
	qm, ok := m.get(matchID)
	if !ok {
		return
	}
	qm.mu.Lock()
	if qm.status != StatusPlaying || qm.index != index {
		qm.mu.Unlock()
		return
	}
	qm.timer = nil
	for _, id := range qm.order {
		r := qm.racers[id]
		if r.Left || qm.answered[id] {
			continue
		}
		qm.answered[id] = true
		r.Answered++
		r.Wrong++
		r.Streak = 0
		r.Response += m.limit
		m.metrics.Answer(ContextQuickMatch, false)
		_ = ws.Notify(m.sender, ws.TypeWrongAnswer, ws.WrongAnswerPayload{
			ContextID:     qm.id,
			CorrectAnswer: qm.current.CorrectAnswer,
			Explanation:   qm.current.Explanation,
			TotalScore:    r.Score,
		}, id)
	}
	m.progressLocked(qm)
	finished := m.advanceLocked(qm)
	qm.mu.Unlock()

	if finished {
		m.finish(qm)
	}
}

// SubmitAnswer scores the player's answer to the current question. Each
// player answers each question at most once.
func (m *QuickMatchManager) SubmitAnswer(playerID, answer string) error {
	qm, ok := m.matchOf(playerID)
	if !ok {
		return ErrNotInMatch
	}

	qm.mu.Lock()
	r, ok := qm.racers[playerID]
	if !ok || r.Left {
		qm.mu.Unlock()
		return ErrNotInMatch
	}
	if qm.status != StatusPlaying {
		qm.mu.Unlock()
		return ErrNotPlaying
	}
	if qm.answered[playerID] {
		qm.mu.Unlock()
		return ErrAlreadyAnswered
	}

	qm.answered[playerID] = true
	rt := m.sched.Now().Sub(qm.questionStart)
	if rt < 0 {
		rt = 0
	}
	r.Answered++
	r.Response += rt

	correct := m.questions.IsCorrect(qm.current, answer)
	m.metrics.Answer(ContextQuickMatch, correct)
	if correct {
		r.Streak++
		r.BestStreak = max(r.BestStreak, r.Streak)
		r.Correct++
		b := m.engine.Calculate(qm.difficulty, rt, r.Streak)
		r.Score += b.TotalPoints
		_ = ws.Notify(m.sender, ws.TypeScoreUpdate, ws.ScoreUpdatePayload{
			ContextID:            qm.id,
			BasePoints:           b.BasePoints,
			DifficultyMultiplier: b.DifficultyMultiplier,
			SpeedBonus:           b.SpeedBonus,
			StreakMultiplier:     b.StreakMultiplier,
			Points:               b.TotalPoints,
			BonusTag:             b.BonusTag,
			TotalScore:           r.Score,
			Streak:               r.Streak,
		}, playerID)
	} else {
		r.Streak = 0
		r.Wrong++
		_ = ws.Notify(m.sender, ws.TypeWrongAnswer, ws.WrongAnswerPayload{
			ContextID:     qm.id,
			Submitted:     answer,
			CorrectAnswer: qm.current.CorrectAnswer,
			Explanation:   qm.current.Explanation,
			TotalScore:    r.Score,
		}, playerID)
	}
	m.progressLocked(qm)

	finished := false
	if qm.allAnswered() {
		finished = m.advanceLocked(qm)
	}
	qm.mu.Unlock()

	if finished {
		m.finish(qm)
	}
	return nil
}

// Leave marks the player as gone and frees them for other activities.
// Their answers are no longer awaited; a match left by everyone finishes.
func (m *QuickMatchManager) Leave(playerID string) bool {
	qm, ok := m.matchOf(playerID)
	if !ok {
		return false
	}

	qm.mu.Lock()
	r, ok := qm.racers[playerID]
	if !ok || r.Left {
		qm.mu.Unlock()
		return false
	}
	r.Left = true
	m.registry.Release(playerID, qm.activity())
	m.logger.Info().Str("match_id", qm.id).Str("player_id", playerID).Msg("player left quick match")

	finished := false
	switch qm.status {
	case StatusCountdown:
		if qm.activeCount() == 0 {
			if qm.timer != nil {
				qm.timer.Stop()
			}
			qm.status = StatusResults
			finished = true
		}
	case StatusPlaying:
		m.progressLocked(qm)
		if qm.allAnswered() {
			finished = m.advanceLocked(qm)
		}
	}
	qm.mu.Unlock()

	if finished {
		m.finish(qm)
	}
	return true
}

// finish publishes standings, records results and schedules cleanup. It
// runs once per match, after the status moved to results.
func (m *QuickMatchManager) finish(qm *quickMatch) {
	qm.mu.Lock()
	standings := qm.standings()
	winner := ""
	if len(standings) > 0 && !qm.racers[standings[0].PlayerID].Left {
		winner = standings[0].PlayerID
	}
	qm.winner = winner
	m.notify(qm, ws.TypeRaceWinner, ws.RaceWinnerPayload{MatchID: qm.id, WinnerID: winner, Standings: standings})
	m.notify(qm, ws.TypeQuickMatchUpdate, ws.QuickMatchUpdatePayload{MatchID: qm.id, Status: StatusResults})

	var finishers []racer
	for _, id := range qm.order {
		if r := qm.racers[id]; !r.Left {
			finishers = append(finishers, *r)
		}
	}
	subject, difficulty := qm.subject, qm.difficulty
	qm.timer = m.sched.AfterFunc(m.grace, func() { m.cleanup(qm.id) })
	qm.mu.Unlock()

	m.logger.Info().
		Str("match_id", qm.id).
		Str("winner_id", winner).
		Int("finishers", len(finishers)).
		Msg("quick match finished")

	if len(finishers) == 0 {
		return
	}
	m.persisting.Add(1)
	go func() {
		defer m.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, r := range finishers {
			m.record(ctx, r, subject, difficulty, r.PlayerID == winner)
		}
	}()
}

// Wait blocks until results of finished matches have been recorded.
func (m *QuickMatchManager) Wait() {
	m.persisting.Wait()
}

func (m *QuickMatchManager) record(ctx context.Context, r racer, subject, difficulty string, won bool) {
	total := r.Correct + r.Wrong
	sum := scoring.Summary{
		TotalScore:      r.Score,
		CorrectCount:    r.Correct,
		WrongCount:      r.Wrong,
		BestStreak:      r.BestStreak,
		AvgResponseTime: r.avgResponse(),
		PerfectGame:     total >= m.engine.Config().MinPerfectQuestions && r.Wrong == 0,
		XPEarned:        m.engine.XP(r.Score),
	}
	if total > 0 {
		sum.Accuracy = float64(r.Correct) / float64(total)
	}
	sum.Grade = scoring.Grade(sum.Accuracy, sum.AvgResponseTime.Seconds(), sum.BestStreak)

	if m.board != nil {
		m.board.SubmitScore(ctx, leaderboard.ScoreSubmission{
			PlayerID:           r.PlayerID,
			Username:           r.Username,
			Score:              r.Score,
			Subject:            subject,
			BestStreak:         r.BestStreak,
			PerfectGame:        sum.PerfectGame,
			AvgResponseSeconds: sum.AvgResponseTime.Seconds(),
			Extra:              map[string]interface{}{"mode": ContextQuickMatch, "difficulty": difficulty},
		})
	}
	if m.profiles != nil {
		unlocked := m.profiles.RecordGameResult(ctx, profile.GameResult{
			PlayerID: r.PlayerID,
			Username: r.Username,
			Subject:  subject,
			Summary:  sum,
			Won:      won,
		})
		for _, a := range unlocked {
			_ = ws.Notify(m.sender, ws.TypeAchievementUnlocked, ws.AchievementUnlockedPayload{
				AchievementID: a.ID,
				Title:         a.Title,
				Description:   a.Description,
			}, r.PlayerID)
		}
	}
}

func (m *QuickMatchManager) cleanup(matchID string) {
	m.mu.Lock()
	qm, ok := m.matches[matchID]
	delete(m.matches, matchID)
	m.mu.Unlock()
	if !ok {
		return
	}

	qm.mu.Lock()
	for _, id := range qm.order {
		m.registry.Release(id, qm.activity())
	}
	qm.mu.Unlock()

	m.metrics.QuickMatchClosed()
	m.logger.Debug().Str("match_id", matchID).Msg("quick match cleaned up")
}

// State returns a snapshot of the match.
func (m *QuickMatchManager) State(matchID string) (QuickMatchState, bool) {
	qm, ok := m.get(matchID)
	if !ok {
		return QuickMatchState{}, false
	}
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return QuickMatchState{
		MatchID:              qm.id,
		Subject:              qm.subject,
		Difficulty:           qm.difficulty,
		Players:              append([]string(nil), qm.order...),
		CurrentQuestionIndex: max(qm.index, 0),
		TotalQuestions:       qm.total,
		Status:               qm.status,
		StartedAt:            qm.startedAt,
		WinnerID:             qm.winner,
	}, true
}

// Standings returns the current ranking of the match.
func (m *QuickMatchManager) Standings(matchID string) ([]ws.Standing, bool) {
	qm, ok := m.get(matchID)
	if !ok {
		return nil, false
	}
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.standings(), true
}

// MatchID returns the quick match the player is in, if any.
func (m *QuickMatchManager) MatchID(playerID string) (string, bool) {
	cur, ok := m.registry.Current(playerID)
	if !ok || cur.Kind != activity.KindQuickMatch {
		return "", false
	}
	return cur.ID, true
}

func (m *QuickMatchManager) matchOf(playerID string) (*quickMatch, bool) {
	id, ok := m.MatchID(playerID)
	if !ok {
		return nil, false
	}
	return m.get(id)
}

func (m *QuickMatchManager) get(matchID string) (*quickMatch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qm, ok := m.matches[matchID]
	return qm, ok
}

// progressLocked broadcasts the running standings. Callers hold qm.mu.
func (m *QuickMatchManager) progressLocked(qm *quickMatch) {
	m.notify(qm, ws.TypeRaceProgress, ws.RaceProgressPayload{
		MatchID:       qm.id,
		QuestionIndex: qm.index + 1,
		Total:         qm.total,
		Standings:     qm.standings(),
	})
}

// notify sends to every player still in the match. Callers hold qm.mu.
func (m *QuickMatchManager) notify(qm *quickMatch, msgType string, payload interface{}) {
	ids := make([]string, 0, len(qm.order))
	for _, id := range qm.order {
		if !qm.racers[id].Left {
			ids = append(ids, id)
		}
	}
	if err := ws.Notify(m.sender, msgType, payload, ids...); err != nil {
		m.logger.Debug().Err(err).Str("match_id", qm.id).Str("type", msgType).Msg("notify failed")
	}
}

func (qm *quickMatch) activity() activity.Activity {
	return activity.Activity{Kind: activity.KindQuickMatch, ID: qm.id}
}

func (qm *quickMatch) activeCount() int {
	n := 0
	for _, r := range qm.racers {
		if !r.Left {
			n++
		}
	}
	return n
}

func (qm *quickMatch) allAnswered() bool {
	for id, r := range qm.racers {
		if !r.Left && !qm.answered[id] {
			return false
		}
	}
	return true
}

// standings orders players still in the match ahead of those who left,
// then by score, correct answers, lower total response time and join order.
func (qm *quickMatch) standings() []ws.Standing {
	racers := make([]*racer, 0, len(qm.racers))
	for _, id := range qm.order {
		racers = append(racers, qm.racers[id])
	}
	slices.SortStableFunc(racers, func(a, b *racer) int {
		if a.Left != b.Left {
			if a.Left {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Correct, a.Correct); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Response, b.Response); c != 0 {
			return c
		}
		return cmp.Compare(a.joinOrder, b.joinOrder)
	})

	out := make([]ws.Standing, len(racers))
	for i, r := range racers {
		out[i] = ws.Standing{
			PlayerID:       r.PlayerID,
			Username:       r.Username,
			Score:          r.Score,
			CorrectAnswers: r.Correct,
			Answered:       r.Answered,
			ResponseTimeMs: r.Response.Milliseconds(),
			Left:           r.Left,
		}
	}
	return out
}
