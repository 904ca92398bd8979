package tournament

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/profile"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// ContextTournament tags question and score payloads sent from tournament matches.
const ContextTournament = "tournament"

const (
	generateTimeout = 10 * time.Second
	persistTimeout  = 15 * time.Second
)

// Options configures the orchestrator. Zero values take gameplay defaults.
type Options struct {
	QuestionTimeLimit time.Duration // default 15s
	InterRoundDelay   time.Duration // default 10s
	CompletionGrace   time.Duration // default 60s
	AutoStartDelay    time.Duration // default 0: start as soon as the minimum joins
	ChallengeTimeout  time.Duration // default 60s
	QuestionsPerMatch int           // default 5
	GenerationRetries int           // default 3
	RetryBase         time.Duration // default 1s, doubled per retry

	Scheduler  schedule.Scheduler
	Sender     ws.Sender
	Scoring    *scoring.Engine
	TieBreaker TieBreaker
	Shuffle    Shuffle
	Rand       *rand.Rand
	Rewards    RewardGranter
	Profiles   *profile.Service
	Archive    ResultArchive
	Metrics    *metrics.Collectors
}

// Orchestrator owns every tournament in the process. Each tournament has its
// own lock; the orchestrator lock only guards the index. A tournament lock is
// never taken while the index lock is held.
type Orchestrator struct {
	registry  *activity.Registry
	questions *question.Registry
	engine    *scoring.Engine
	sched     schedule.Scheduler
	sender    ws.Sender
	tieBreak  TieBreaker
	shuffle   Shuffle
	rnd       *lockedRand
	rewards   RewardGranter
	profiles  *profile.Service
	archive   ResultArchive
	metrics   *metrics.Collectors
	logger    zerolog.Logger

	limit      time.Duration
	interRound time.Duration
	grace      time.Duration
	startDelay time.Duration
	inviteTTL  time.Duration
	questionsN int
	retries    int
	retryBase  time.Duration

	mu          sync.RWMutex
	tournaments map[string]*Tournament

	persisting sync.WaitGroup
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(registry *activity.Registry, questions *question.Registry, logger zerolog.Logger, opts Options) *Orchestrator {
	if opts.QuestionTimeLimit <= 0 {
		opts.QuestionTimeLimit = 15 * time.Second
	}
	if opts.InterRoundDelay <= 0 {
		opts.InterRoundDelay = 10 * time.Second
	}
	if opts.CompletionGrace <= 0 {
		opts.CompletionGrace = 60 * time.Second
	}
	if opts.ChallengeTimeout <= 0 {
		opts.ChallengeTimeout = 60 * time.Second
	}
	if opts.QuestionsPerMatch <= 0 {
		opts.QuestionsPerMatch = defaultQuestions
	}
	if opts.GenerationRetries <= 0 {
		opts.GenerationRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	if opts.Scoring == nil {
		opts.Scoring = scoring.NewEngine(scoring.DefaultScoringConfig())
	}
	src := &lockedRand{rnd: opts.Rand}
	if opts.TieBreaker == nil {
		opts.TieBreaker = coinFlip(src)
	}
	if opts.Shuffle == nil {
		opts.Shuffle = randomShuffle(src)
	}
	if opts.Rewards == nil && opts.Profiles != nil {
		opts.Rewards = ProfileRewards{Profiles: opts.Profiles}
	}
	return &Orchestrator{
		registry:    registry,
		questions:   questions,
		engine:      opts.Scoring,
		sched:       opts.Scheduler,
		sender:      opts.Sender,
		tieBreak:    opts.TieBreaker,
		shuffle:     opts.Shuffle,
		rnd:         src,
		rewards:     opts.Rewards,
		profiles:    opts.Profiles,
		archive:     opts.Archive,
		metrics:     opts.Metrics,
		logger:      logger.With().Str("component", "tournament").Logger(),
		limit:       opts.QuestionTimeLimit,
		interRound:  opts.InterRoundDelay,
		grace:       opts.CompletionGrace,
		startDelay:  opts.AutoStartDelay,
		inviteTTL:   opts.ChallengeTimeout,
		questionsN:  opts.QuestionsPerMatch,
		retries:     opts.GenerationRetries,
		retryBase:   opts.RetryBase,
		tournaments: make(map[string]*Tournament),
	}
}

// effects collects work that must run after the tournament lock is released:
// question generation and persistence.
type effects struct {
	after []func()
}

func (fx *effects) later(fn func()) { fx.after = append(fx.after, fn) }

func (o *Orchestrator) withLock(t *Tournament, fn func(fx *effects)) {
	fx := &effects{}
	t.mu.Lock()
	fn(fx)
	t.mu.Unlock()
	for _, f := range fx.after {
		f()
	}
}

// CreateTournament validates cfg and opens a tournament with the creator as
// its first participant.
func (o *Orchestrator) CreateTournament(ctx context.Context, creatorID, username string, cfg Config) (View, error) {
	cfg.Normalize(o.questionsN)
	if err := cfg.Validate(); err != nil {
		o.logger.Warn().Err(err).Str("player_id", creatorID).Msg("tournament rejected")
		return View{}, err
	}
	t, err := o.create(creatorID, username, cfg)
	if err != nil {
		return View{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	o.broadcast(t, EventCreated)
	return t.view(), nil
}

func (o *Orchestrator) create(creatorID, username string, cfg Config) (*Tournament, error) {
	now := o.sched.Now()
	t := &Tournament{
		ID:         uuid.NewString(),
		Config:     cfg,
		CreatorID:  creatorID,
		Status:     StatusWaiting,
		Placements: make(map[string]int),
		CreatedAt:  now,
	}
	if err := o.registry.Claim(creatorID, t.activity()); err != nil {
		return nil, ErrAlreadyInActivity
	}
	t.Participants = []*Participant{{PlayerID: creatorID, Username: username, JoinedAt: now}}

	o.mu.Lock()
	if cfg.IsPrivate {
		t.InviteCode = cfg.InviteCode
		if t.InviteCode == "" {
			t.InviteCode = generateInviteCode(o.rnd, o.codeTakenLocked)
		}
	}
	o.tournaments[t.ID] = t
	o.mu.Unlock()

	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("type", cfg.Type).
		Str("player_id", creatorID).
		Bool("private", cfg.IsPrivate).
		Msg("tournament created")
	return t, nil
}

func (o *Orchestrator) codeTakenLocked(code string) bool {
	for _, t := range o.tournaments {
		if t.InviteCode == code {
			return true
		}
	}
	return false
}

// JoinTournament adds the player. Reaching the minimum may start the
// tournament right away or after the auto-start delay.
func (o *Orchestrator) JoinTournament(ctx context.Context, playerID, username, tournamentID, inviteCode string) (View, error) {
	t, ok := o.get(tournamentID)
	if !ok {
		return View{}, ErrNotFound
	}
	var (
		view View
		err  error
	)
	o.withLock(t, func(fx *effects) {
		err = o.join(t, playerID, username, inviteCode, false, fx)
		view = t.view()
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("tournament_id", tournamentID).Str("player_id", playerID).Msg("join rejected")
		return View{}, err
	}
	return view, nil
}

func (o *Orchestrator) join(t *Tournament, playerID, username, inviteCode string, invited bool, fx *effects) error {
	if o.registry.Busy(playerID) {
		return ErrAlreadyInActivity
	}
	if t.Status != StatusWaiting {
		return ErrNotJoinable
	}
	if len(t.Participants) >= t.Config.MaxParticipants {
		return ErrFull
	}
	if t.Config.IsPrivate && !invited && !codesMatch(t.InviteCode, inviteCode) {
		return ErrInviteCodeMismatch
	}
	if err := o.registry.Claim(playerID, t.activity()); err != nil {
		return ErrAlreadyInActivity
	}

	t.Participants = append(t.Participants, &Participant{PlayerID: playerID, Username: username, JoinedAt: o.sched.Now()})
	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("player_id", playerID).
		Int("participants", len(t.Participants)).
		Msg("player joined tournament")
	o.broadcast(t, EventJoined)
	o.maybeAutoStart(t, fx)
	return nil
}

func (o *Orchestrator) maybeAutoStart(t *Tournament, fx *effects) {
	n := len(t.Participants)
	if n < t.Config.MinParticipants {
		return
	}
	switch t.Config.Type {
	case TypeQuickMatch, TypeChallenge:
		if n == t.Config.MaxParticipants {
			o.start(t, fx)
		}
		return
	}

	delay := t.Config.AutoStartDelay
	if delay <= 0 {
		delay = o.startDelay
	}
	if delay <= 0 {
		o.start(t, fx)
		return
	}
	if t.waitTimer != nil {
		return
	}
	t.waitTimer = o.sched.AfterFunc(delay, func() {
		o.withLock(t, func(fx *effects) {
			t.waitTimer = nil
			if t.Status == StatusWaiting && len(t.Participants) >= t.Config.MinParticipants {
				o.start(t, fx)
			}
		})
	})
}

// StartTournament lets the creator start once the minimum has joined.
func (o *Orchestrator) StartTournament(ctx context.Context, playerID, tournamentID string) error {
	t, ok := o.get(tournamentID)
	if !ok {
		return ErrNotFound
	}
	var err error
	o.withLock(t, func(fx *effects) {
		switch {
		case t.CreatorID != playerID:
			err = ErrNotCreator
		case t.Status != StatusWaiting:
			err = ErrNotJoinable
		case len(t.Participants) < t.Config.MinParticipants:
			err = ErrNotEnoughPlayers
		default:
			o.start(t, fx)
		}
	})
	return err
}

// LeaveTournament removes a player from a waiting tournament. Once play has
// begun the player stays in the bracket marked disconnected and forfeits.
// Their activity claim is released either way.
func (o *Orchestrator) LeaveTournament(ctx context.Context, playerID string) bool {
	t, ok := o.tournamentOf(playerID)
	if !ok {
		o.logger.Warn().Str("player_id", playerID).Msg("leave for player outside any tournament")
		return false
	}

	left := false
	o.withLock(t, func(fx *effects) {
		p := t.participant(playerID)
		if p == nil || p.Disconnected {
			return
		}
		left = true
		o.registry.Release(playerID, t.activity())

		if t.Status == StatusWaiting {
			t.removeParticipant(playerID)
			o.logger.Info().Str("tournament_id", t.ID).Str("player_id", playerID).Msg("player left tournament")
			if len(t.Participants) == 0 {
				o.cancel(t, "empty")
				return
			}
			if t.CreatorID == playerID {
				t.CreatorID = t.Participants[0].PlayerID
			}
			o.broadcast(t, EventLeft)
			return
		}

		p.Disconnected = true
		o.logger.Info().Str("tournament_id", t.ID).Str("player_id", playerID).Msg("player disconnected from tournament")
		o.broadcast(t, EventLeft)
		if m := t.activeMatch(playerID); m != nil && m.open && o.allAnswered(t, m) {
			o.advanceMatch(t, m, fx)
		}
	})
	return left
}

// CancelTournament lets the creator call off a tournament that has not
// finished. The record is deleted immediately.
func (o *Orchestrator) CancelTournament(ctx context.Context, playerID, tournamentID string) error {
	t, ok := o.get(tournamentID)
	if !ok {
		return ErrNotFound
	}
	var err error
	o.withLock(t, func(fx *effects) {
		switch {
		case t.CreatorID != playerID:
			err = ErrNotCreator
		case t.finished():
			err = ErrNotJoinable
		default:
			o.cancel(t, "creator")
		}
	})
	return err
}

// ChallengePlayer opens a private two-player tournament and invites target.
// A challenge not accepted within the challenge timeout is cancelled.
func (o *Orchestrator) ChallengePlayer(ctx context.Context, challengerID, username, targetID string, cfg Config) (View, error) {
	if targetID == "" || targetID == challengerID {
		return View{}, fmt.Errorf("%w: challenge needs another player", ErrInvalidConfig)
	}
	if o.registry.Busy(targetID) {
		return View{}, ErrAlreadyInActivity
	}
	cfg.Type = TypeChallenge
	cfg.IsPrivate = true
	cfg.IsOfficial = false
	cfg.Rewards = nil
	if cfg.Name == "" {
		name := username
		if name == "" {
			name = challengerID
		}
		cfg.Name = "Challenge from " + name
	}
	cfg.Normalize(o.questionsN)
	if err := cfg.Validate(); err != nil {
		return View{}, err
	}

	t, err := o.create(challengerID, username, cfg)
	if err != nil {
		return View{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invited = targetID
	t.waitTimer = o.sched.AfterFunc(o.inviteTTL, func() { o.expireChallenge(t) })
	o.broadcast(t, EventCreated)
	o.notify(t, EventChallenge, targetID)
	return t.view(), nil
}

// expireChallenge cancels a challenge still waiting for its target.
func (o *Orchestrator) expireChallenge(t *Tournament) {
	o.withLock(t, func(fx *effects) {
		if t.Status != StatusWaiting {
			return
		}
		t.waitTimer = nil
		o.notify(t, EventCancelled, t.invited)
		o.cancel(t, "challenge_expired")
	})
}

// AcceptChallenge joins the invited player, which starts the match.
func (o *Orchestrator) AcceptChallenge(ctx context.Context, playerID, username, tournamentID string) (View, error) {
	t, ok := o.get(tournamentID)
	if !ok {
		return View{}, ErrNotFound
	}
	var (
		view View
		err  error
	)
	o.withLock(t, func(fx *effects) {
		if t.Config.Type != TypeChallenge || t.invited != playerID {
			err = ErrNotInvited
			return
		}
		err = o.join(t, playerID, username, "", true, fx)
		view = t.view()
	})
	return view, err
}

// DeclineChallenge cancels a challenge sent to playerID.
func (o *Orchestrator) DeclineChallenge(ctx context.Context, playerID, tournamentID string) error {
	t, ok := o.get(tournamentID)
	if !ok {
		return ErrNotFound
	}
	var err error
	o.withLock(t, func(fx *effects) {
		switch {
		case t.Config.Type != TypeChallenge || t.invited != playerID:
			err = ErrNotInvited
		case t.Status != StatusWaiting:
			err = ErrNotJoinable
		default:
			o.notify(t, EventCancelled, playerID)
			o.cancel(t, "declined")
		}
	})
	return err
}

// SubmitAnswer scores the player's answer to their match's open question.
func (o *Orchestrator) SubmitAnswer(playerID, answer string) error {
	t, ok := o.tournamentOf(playerID)
	if !ok {
		return ErrNotParticipant
	}
	var err error
	o.withLock(t, func(fx *effects) {
		m := t.activeMatch(playerID)
		if m == nil || !m.open {
			err = ErrNoActiveMatch
			return
		}
		if m.answered[playerID] {
			err = ErrAlreadyAnswered
			return
		}
		m.answered[playerID] = true
		rt := max(o.sched.Now().Sub(m.questionStart), 0)
		m.answers[playerID]++
		m.response[playerID] += rt

		correct := o.questions.IsCorrect(m.current, answer)
		o.metrics.Answer(ContextTournament, correct)
		if correct {
			m.streak[playerID]++
			m.correct[playerID]++
			b := o.engine.Calculate(t.Config.Difficulty, rt, m.streak[playerID])
			m.Scores[playerID] += b.TotalPoints
			_ = ws.Notify(o.sender, ws.TypeScoreUpdate, ws.ScoreUpdatePayload{
				ContextID:            m.ID,
				BasePoints:           b.BasePoints,
				DifficultyMultiplier: b.DifficultyMultiplier,
				SpeedBonus:           b.SpeedBonus,
				StreakMultiplier:     b.StreakMultiplier,
				Points:               b.TotalPoints,
				BonusTag:             b.BonusTag,
				TotalScore:           m.Scores[playerID],
				Streak:               m.streak[playerID],
			}, playerID)
		} else {
			m.streak[playerID] = 0
			_ = ws.Notify(o.sender, ws.TypeWrongAnswer, ws.WrongAnswerPayload{
				ContextID:     m.ID,
				Submitted:     answer,
				CorrectAnswer: m.current.CorrectAnswer,
				Explanation:   m.current.Explanation,
				TotalScore:    m.Scores[playerID],
			}, playerID)
		}

		if o.allAnswered(t, m) {
			o.advanceMatch(t, m, fx)
		}
	})
	return err
}

// Get returns a snapshot of the tournament.
func (o *Orchestrator) Get(tournamentID string) (View, bool) {
	t, ok := o.get(tournamentID)
	if !ok {
		return View{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view(), true
}

// List returns public tournaments still accepting players, oldest first.
func (o *Orchestrator) List() []View {
	o.mu.RLock()
	all := make([]*Tournament, 0, len(o.tournaments))
	for _, t := range o.tournaments {
		all = append(all, t)
	}
	o.mu.RUnlock()

	var out []View
	for _, t := range all {
		t.mu.Lock()
		if t.Status == StatusWaiting && !t.Config.IsPrivate {
			out = append(out, t.view())
		}
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TournamentOf returns the tournament the player currently belongs to.
func (o *Orchestrator) TournamentOf(playerID string) (string, bool) {
	cur, ok := o.registry.Current(playerID)
	if !ok || cur.Kind != activity.KindTournament {
		return "", false
	}
	return cur.ID, true
}

// Recent returns archived results, newest first.
func (o *Orchestrator) Recent(ctx context.Context, limit int) ([]Result, error) {
	if o.archive == nil {
		return nil, errors.New("tournament archive not configured")
	}
	return o.archive.Recent(ctx, limit)
}

func (o *Orchestrator) tournamentOf(playerID string) (*Tournament, bool) {
	id, ok := o.TournamentOf(playerID)
	if !ok {
		return nil, false
	}
	return o.get(id)
}

func (o *Orchestrator) get(id string) (*Tournament, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tournaments[id]
	return t, ok
}

func (o *Orchestrator) remove(t *Tournament) {
	o.mu.Lock()
	delete(o.tournaments, t.ID)
	o.mu.Unlock()
}

// cancel stops every timer, frees all players and deletes the tournament.
func (o *Orchestrator) cancel(t *Tournament, reason string) {
	t.stopTimers()
	t.Status = StatusCancelled
	t.FinishedAt = o.sched.Now()
	o.broadcast(t, EventCancelled)
	for _, p := range t.Participants {
		o.registry.Release(p.PlayerID, t.activity())
	}
	o.remove(t)
	o.metrics.TournamentFinished(t.Config.Type, StatusCancelled)
	o.logger.Info().Str("tournament_id", t.ID).Str("reason", reason).Msg("tournament cancelled")
}

func (t *Tournament) stopTimers() {
	for _, tm := range []schedule.Timer{t.waitTimer, t.roundTimer, t.endTimer} {
		if tm != nil {
			tm.Stop()
		}
	}
	for _, r := range t.Rounds {
		for _, m := range r.Matches {
			if m.timer != nil {
				m.timer.Stop()
				m.timer = nil
			}
			m.open = false
		}
	}
}

func (t *Tournament) removeParticipant(playerID string) {
	for i, p := range t.Participants {
		if p.PlayerID == playerID {
			t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
			return
		}
	}
}

func (t *Tournament) activity() activity.Activity {
	return activity.Activity{Kind: activity.KindTournament, ID: t.ID}
}

func codesMatch(want, got string) bool {
	return want != "" && want == normalizeCode(got)
}
