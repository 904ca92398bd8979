package tournament

import (
	"time"

	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// View is a read-only copy of a tournament.
type View struct {
	ID              string                   `json:"tournament_id"`
	Name            string                   `json:"name"`
	Type            string                   `json:"type"`
	Subject         string                   `json:"subject"`
	Difficulty      string                   `json:"difficulty"`
	Status          string                   `json:"status"`
	CreatorID       string                   `json:"creator_id"`
	IsPrivate       bool                     `json:"is_private"`
	IsOfficial      bool                     `json:"is_official"`
	InviteCode      string                   `json:"-"`
	MinParticipants int                      `json:"min_participants"`
	MaxParticipants int                      `json:"max_participants"`
	Participants    []Participant            `json:"participants"`
	CurrentRound    int                      `json:"current_round"`
	Rounds          []ws.TournamentRoundView `json:"rounds,omitempty"`
	WinnerID        string                   `json:"winner_id,omitempty"`
	RunnerUpID      string                   `json:"runner_up_id,omitempty"`
	Placements      map[string]int           `json:"placements,omitempty"`
	Rewards         []Reward                 `json:"rewards,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	StartedAt       time.Time                `json:"started_at,omitempty"`
	FinishedAt      time.Time                `json:"finished_at,omitempty"`
}

// view copies t. Callers hold t.mu.
func (t *Tournament) view() View {
	v := View{
		ID:              t.ID,
		Name:            t.Config.Name,
		Type:            t.Config.Type,
		Subject:         t.Config.Subject,
		Difficulty:      t.Config.Difficulty,
		Status:          t.Status,
		CreatorID:       t.CreatorID,
		IsPrivate:       t.Config.IsPrivate,
		IsOfficial:      t.Config.IsOfficial,
		InviteCode:      t.InviteCode,
		MinParticipants: t.Config.MinParticipants,
		MaxParticipants: t.Config.MaxParticipants,
		CurrentRound:    t.CurrentRound,
		Rounds:          t.roundViews(),
		WinnerID:        t.WinnerID,
		RunnerUpID:      t.RunnerUpID,
		Rewards:         append([]Reward(nil), t.Config.Rewards...),
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		FinishedAt:      t.FinishedAt,
	}
	for _, p := range t.Participants {
		v.Participants = append(v.Participants, *p)
	}
	if len(t.Placements) > 0 {
		v.Placements = make(map[string]int, len(t.Placements))
		for id, place := range t.Placements {
			v.Placements[id] = place
		}
	}
	return v
}

func (t *Tournament) roundViews() []ws.TournamentRoundView {
	out := make([]ws.TournamentRoundView, 0, len(t.Rounds))
	for _, r := range t.Rounds {
		rv := ws.TournamentRoundView{RoundNumber: r.Number, Status: r.Status}
		for _, m := range r.Matches {
			mv := ws.TournamentMatchView{
				MatchID:        m.ID,
				Status:         m.Status,
				Scores:         make(map[string]int, len(m.Scores)),
				QuestionIndex:  m.QuestionIndex,
				TotalQuestions: m.TotalQuestions,
				WinnerID:       m.WinnerID,
				Bye:            m.Bye,
			}
			if len(m.Players) > 0 {
				mv.Participant1ID = m.Players[0]
			}
			if len(m.Players) > 1 {
				mv.Participant2ID = m.Players[1]
			}
			for id, s := range m.Scores {
				mv.Scores[id] = s
			}
			rv.Matches = append(rv.Matches, mv)
		}
		out = append(out, rv)
	}
	return out
}

func (t *Tournament) payload(event string) ws.TournamentUpdatePayload {
	p := ws.TournamentUpdatePayload{
		TournamentID: t.ID,
		Name:         t.Config.Name,
		Type:         t.Config.Type,
		Status:       t.Status,
		Event:        event,
		InviteCode:   t.InviteCode,
		CurrentRound: t.CurrentRound,
		Rounds:       t.roundViews(),
		WinnerID:     t.WinnerID,
		RunnerUpID:   t.RunnerUpID,
	}
	for _, pt := range t.Participants {
		p.Participants = append(p.Participants, ws.Player{PlayerID: pt.PlayerID, Username: pt.Username})
	}
	return p
}

// broadcast sends a tournament-update to every connected participant.
// Callers hold t.mu.
func (o *Orchestrator) broadcast(t *Tournament, event string) {
	o.notify(t, event, t.connectedIDs()...)
}

func (o *Orchestrator) notify(t *Tournament, event string, playerIDs ...string) {
	if err := ws.Notify(o.sender, ws.TypeTournamentUpdate, t.payload(event), playerIDs...); err != nil {
		o.logger.Debug().Err(err).Str("tournament_id", t.ID).Str("event", event).Msg("notify failed")
	}
}

// sendQuestion delivers the open question to the match's connected players.
func (o *Orchestrator) sendQuestion(t *Tournament, m *Match) {
	q := &ws.QuestionPayload{
		Context:          ContextTournament,
		ContextID:        m.ID,
		QuestionID:       m.current.ID,
		Subject:          m.current.Subject,
		Category:         m.current.Category,
		Difficulty:       m.current.Difficulty,
		Text:             m.current.Text,
		Index:            m.QuestionIndex + 1,
		Total:            m.TotalQuestions,
		TimeLimitSeconds: int(o.limit / time.Second),
	}
	p := t.payload(EventQuestion)
	p.Question = q
	p.Options = m.current.Options(nil)

	ids := make([]string, 0, len(m.Players))
	for _, id := range m.Players {
		if t.connected(id) {
			ids = append(ids, id)
		}
	}
	if err := ws.Notify(o.sender, ws.TypeTournamentUpdate, p, ids...); err != nil {
		o.logger.Debug().Err(err).Str("tournament_id", t.ID).Str("match_id", m.ID).Msg("send question failed")
	}
}
