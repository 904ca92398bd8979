package tournament

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/falling-trivia/internal/profile"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// Match resolutions reported to metrics.
const (
	resolvedPlayed   = "played"
	resolvedTieBreak = "tie_break"
	resolvedStalled  = "stalled"
)

// start draws the rounds and begins round one. Callers hold t.mu.
func (o *Orchestrator) start(t *Tournament, fx *effects) {
	if t.waitTimer != nil {
		t.waitTimer.Stop()
		t.waitTimer = nil
	}
	t.Status = StatusStarting
	t.StartedAt = o.sched.Now()
	o.broadcast(t, EventStarted)

	ids := t.playerIDs()
	questions := t.Config.QuestionsPerMatch
	switch t.Config.Type {
	case TypeBracket:
		o.shuffle(ids)
		t.Rounds = buildBracket(ids, questions, uuid.NewString)
	case TypeLeague:
		t.Rounds = buildLeague(ids, questions, uuid.NewString)
	default:
		t.Rounds = buildSingle(ids, questions, uuid.NewString)
	}

	t.Status = StatusInProgress
	o.logger.Info().
		Str("tournament_id", t.ID).
		Int("participants", len(ids)).
		Int("rounds", len(t.Rounds)).
		Msg("tournament started")
	o.startRound(t, 1, fx)
}

func (o *Orchestrator) startRound(t *Tournament, number int, fx *effects) {
	t.CurrentRound = number
	r := t.Rounds[number-1]
	r.Status = MatchInProgress
	for _, m := range r.Matches {
		if m.Status == MatchPending {
			m.Status = MatchInProgress
			fx.later(func() { o.ask(t, m.ID, 0) })
		}
	}
	o.broadcast(t, EventRoundStarted)
	o.checkRound(t, r, fx)
}

// ask generates question idx of a match outside the tournament lock and
// opens it.
func (o *Orchestrator) ask(t *Tournament, matchID string, idx int) {
	t.mu.Lock()
	m := t.match(matchID)
	if !askable(t, m, idx) {
		t.mu.Unlock()
		return
	}
	subject, difficulty := t.Config.Subject, t.Config.Difficulty
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	q, err := o.questions.Generate(ctx, subject, difficulty, "")
	cancel()

	o.withLock(t, func(fx *effects) {
		if !askable(t, m, idx) {
			return
		}
		if err != nil {
			o.generationFailed(t, m, idx, err, fx)
			return
		}

		m.backoff = nil
		m.current = q
		m.open = true
		m.questionStart = o.sched.Now()
		m.answered = make(map[string]bool, len(m.Players))
		o.sendQuestion(t, m)

		if o.allAnswered(t, m) {
			o.advanceMatch(t, m, fx)
			return
		}
		m.timer = o.sched.AfterFunc(o.limit, func() { o.closeQuestion(t, matchID, idx) })
	})
}

func askable(t *Tournament, m *Match, idx int) bool {
	return t.Status == StatusInProgress && m != nil && m.Status == MatchInProgress && m.QuestionIndex == idx && !m.open
}

// generationFailed retries with exponential backoff, then stalls the match
// and resolves it by forfeit.
func (o *Orchestrator) generationFailed(t *Tournament, m *Match, idx int, err error, fx *effects) {
	o.metrics.QuestionFailed(t.Config.Subject)
	if m.backoff == nil {
		m.backoff = retry.WithMaxRetries(uint64(o.retries), retry.NewExponential(o.retryBase))
	}
	delay, stop := m.backoff.Next()
	if !stop {
		o.logger.Error().Err(err).
			Str("tournament_id", t.ID).
			Str("match_id", m.ID).
			Dur("retry_in", delay).
			Msg("question generation failed")
		m.timer = o.sched.AfterFunc(delay, func() { o.ask(t, m.ID, idx) })
		return
	}

	o.logger.Error().Err(err).
		Str("tournament_id", t.ID).
		Str("match_id", m.ID).
		Int("question_index", idx).
		Msg("match stalled, resolving by forfeit")
	m.Status = MatchStalled
	o.broadcast(t, EventMatchProgress)
	o.finishMatch(t, m, fx)
}

// closeQuestion ends question idx when its time limit passes. Players who
// did not answer lose their streak.
func (o *Orchestrator) closeQuestion(t *Tournament, matchID string, idx int) {
	o.withLock(t, func(fx *effects) {
		m := t.match(matchID)
		if t.Status != StatusInProgress || m == nil || !m.open || m.QuestionIndex != idx {
			return
		}
		m.timer = nil
		for _, id := range m.Players {
			if !t.connected(id) || m.answered[id] {
				continue
			}
			m.answered[id] = true
			m.answers[id]++
			m.response[id] += o.limit
			m.streak[id] = 0
			o.metrics.Answer(ContextTournament, false)
		}
		o.advanceMatch(t, m, fx)
	})
}

// advanceMatch closes the open question and asks the next one, or finishes
// the match after the last.
func (o *Orchestrator) advanceMatch(t *Tournament, m *Match, fx *effects) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.open = false
	m.QuestionIndex++
	o.broadcast(t, EventMatchProgress)

	if m.QuestionIndex >= m.TotalQuestions {
		o.finishMatch(t, m, fx)
		return
	}
	idx, id := m.QuestionIndex, m.ID
	fx.later(func() { o.ask(t, id, idx) })
}

// allAnswered reports whether every connected player answered the open question.
func (o *Orchestrator) allAnswered(t *Tournament, m *Match) bool {
	for _, id := range m.Players {
		if t.connected(id) && !m.answered[id] {
			return false
		}
	}
	return true
}

// finishMatch picks the winner: the highest score among players still
// connected, or among everyone when nobody is. Ties go to the tie-breaker.
func (o *Orchestrator) finishMatch(t *Tournament, m *Match, fx *effects) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.open = false

	resolution := resolvedPlayed
	if m.Status == MatchStalled {
		resolution = resolvedStalled
	}

	candidates := make([]string, 0, len(m.Players))
	for _, id := range m.Players {
		if t.connected(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		candidates = m.Players
	}

	top := m.Scores[candidates[0]]
	for _, id := range candidates[1:] {
		top = max(top, m.Scores[id])
	}
	var tied []Contender
	for _, id := range candidates {
		if m.Scores[id] == top {
			tied = append(tied, m.contender(id))
		}
	}
	m.WinnerID = tied[0].PlayerID
	if len(tied) > 1 {
		m.WinnerID = o.tieBreak(tied)
		if resolution == resolvedPlayed {
			resolution = resolvedTieBreak
		}
	}
	m.Status = MatchCompleted
	o.metrics.TournamentMatchResolved(resolution)

	for _, id := range m.Players {
		p := t.participant(id)
		if p == nil {
			continue
		}
		p.Points += m.Scores[id]
		if id == m.WinnerID {
			p.Wins++
		} else if t.Config.Type == TypeBracket {
			p.Eliminated = true
		}
	}

	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("match_id", m.ID).
		Str("winner_id", m.WinnerID).
		Str("resolution", resolution).
		Msg("tournament match completed")
	o.broadcast(t, EventMatchCompleted)
	o.checkRound(t, t.Rounds[m.Round-1], fx)
}

func (m *Match) contender(id string) Contender {
	c := Contender{PlayerID: id, Score: m.Scores[id], Correct: m.correct[id]}
	if n := m.answers[id]; n > 0 {
		c.AvgResponse = m.response[id] / time.Duration(n)
	}
	return c
}

// checkRound completes the round once every match in it has completed, then
// either schedules the next round or finishes the tournament.
func (o *Orchestrator) checkRound(t *Tournament, r *Round, fx *effects) {
	if r.Status == MatchCompleted {
		return
	}
	for _, m := range r.Matches {
		if m.Status != MatchCompleted {
			return
		}
	}
	r.Status = MatchCompleted
	o.broadcast(t, EventRoundCompleted)

	if r.Number == len(t.Rounds) {
		o.complete(t, fx)
		return
	}
	next := t.Rounds[r.Number]
	if t.Config.Type == TypeBracket {
		advanceBracket(r, next)
	}
	number := r.Number + 1
	t.roundTimer = o.sched.AfterFunc(o.interRound, func() {
		o.withLock(t, func(fx *effects) {
			t.roundTimer = nil
			if t.Status == StatusInProgress && t.CurrentRound == number-1 {
				o.startRound(t, number, fx)
			}
		})
	})
}

// complete records the final placements and starts persisting them in the
// background once the lock is released. The tournament stays readable for
// the completion grace.
func (o *Orchestrator) complete(t *Tournament, fx *effects) {
	t.WinnerID, t.RunnerUpID = o.placements(t)
	t.Status = StatusCompleted
	t.FinishedAt = o.sched.Now()
	t.Placements = map[string]int{t.WinnerID: 1}
	if t.RunnerUpID != "" {
		t.Placements[t.RunnerUpID] = 2
	}
	o.broadcast(t, EventCompleted)
	o.metrics.TournamentFinished(t.Config.Type, StatusCompleted)
	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("winner_id", t.WinnerID).
		Str("runner_up_id", t.RunnerUpID).
		Msg("tournament completed")

	out := outcome{
		result: Result{
			TournamentID: t.ID,
			Name:         t.Config.Name,
			Type:         t.Config.Type,
			Subject:      t.Config.Subject,
			Difficulty:   t.Config.Difficulty,
			WinnerID:     t.WinnerID,
			RunnerUpID:   t.RunnerUpID,
			Participants: t.playerIDs(),
			Rounds:       len(t.Rounds),
			IsOfficial:   t.Config.IsOfficial,
			StartedAt:    t.StartedAt,
			FinishedAt:   t.FinishedAt,
		},
		placements: t.Placements,
	}
	if t.Config.IsOfficial {
		out.rewards = append([]Reward(nil), t.Config.Rewards...)
	}
	for _, p := range t.Participants {
		out.players = append(out.players, ws.Player{PlayerID: p.PlayerID, Username: p.Username})
	}
	o.persisting.Add(1)
	fx.later(func() {
		go func() {
			defer o.persisting.Done()
			o.persist(out)
		}()
	})

	t.endTimer = o.sched.AfterFunc(o.grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, p := range t.Participants {
			o.registry.Release(p.PlayerID, t.activity())
		}
		o.remove(t)
		o.logger.Debug().Str("tournament_id", t.ID).Msg("tournament removed")
	})
}

// placements returns the winner and runner-up.
func (o *Orchestrator) placements(t *Tournament) (string, string) {
	switch t.Config.Type {
	case TypeBracket:
		final := t.Rounds[len(t.Rounds)-1].Matches[0]
		for _, id := range final.Players {
			if id != final.WinnerID {
				return final.WinnerID, id
			}
		}
		return final.WinnerID, ""
	case TypeLeague:
		standings := t.leagueStandings()
		runnerUp := ""
		if len(standings) > 1 {
			runnerUp = standings[1].PlayerID
		}
		return standings[0].PlayerID, runnerUp
	default:
		m := t.Rounds[0].Matches[0]
		rest := make([]string, 0, len(m.Players))
		for _, id := range m.Players {
			if id != m.WinnerID {
				rest = append(rest, id)
			}
		}
		slices.SortStableFunc(rest, func(a, b string) int { return cmp.Compare(m.Scores[b], m.Scores[a]) })
		if len(rest) == 0 {
			return m.WinnerID, ""
		}
		return m.WinnerID, rest[0]
	}
}

// leagueStandings orders participants by wins, then total points, then join order.
func (t *Tournament) leagueStandings() []*Participant {
	out := append([]*Participant(nil), t.Participants...)
	slices.SortStableFunc(out, func(a, b *Participant) int {
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return cmp.Compare(b.Points, a.Points)
	})
	return out
}

type outcome struct {
	result     Result
	placements map[string]int
	rewards    []Reward
	players    []ws.Player
}

// Wait blocks until completed tournaments have been persisted.
func (o *Orchestrator) Wait() {
	o.persisting.Wait()
}

// persist pays rewards, records profile history and archives the result.
// Failures are logged.
func (o *Orchestrator) persist(out outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	id := out.result.TournamentID

	byPlacement := make(map[int]string, len(out.placements))
	for pid, place := range out.placements {
		byPlacement[place] = pid
	}
	if o.rewards != nil {
		for _, r := range out.rewards {
			pid, ok := byPlacement[r.Placement]
			if !ok {
				continue
			}
			granted, err := o.rewards.Grant(ctx, pid, GrantKey(id, r.Placement), r)
			if err != nil {
				o.metrics.PersistenceFailed("tournament_reward")
				o.logger.Error().Err(err).Str("tournament_id", id).Str("player_id", pid).Msg("reward grant failed")
				continue
			}
			o.logger.Info().
				Str("tournament_id", id).
				Str("player_id", pid).
				Int("placement", r.Placement).
				Bool("granted", granted).
				Msg("tournament reward")
		}
	}

	if o.profiles != nil {
		for _, p := range out.players {
			unlocked := o.profiles.RecordTournamentResult(ctx, p.PlayerID, p.Username, profile.TournamentRecord{
				TournamentID: id,
				Name:         out.result.Name,
				Type:         out.result.Type,
				Placement:    out.placements[p.PlayerID],
				Participants: len(out.players),
				FinishedAt:   out.result.FinishedAt,
			})
			for _, a := range unlocked {
				_ = ws.Notify(o.sender, ws.TypeAchievementUnlocked, ws.AchievementUnlockedPayload{
					AchievementID: a.ID,
					Title:         a.Title,
					Description:   a.Description,
				}, p.PlayerID)
			}
		}
	}

	if o.archive != nil {
		if err := o.archive.Record(ctx, out.result); err != nil {
			o.metrics.PersistenceFailed("tournament_archive")
			o.logger.Error().Err(err).Str("tournament_id", id).Msg("archive tournament result failed")
		}
	}
}
