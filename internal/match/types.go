package match

import (
	"errors"
	"time"
)

// Quick match lifecycle states.
const (
	StatusWaiting   = "waiting"
	StatusCountdown = "countdown"
	StatusPlaying   = "playing"
	StatusResults   = "results"
)

// ContextQuickMatch tags question and score payloads sent from a quick match.
const ContextQuickMatch = "quick_match"

var (
	// ErrNotInMatch is returned when the player holds no quick match.
	ErrNotInMatch = errors.New("player is not in a quick match")
	// ErrNotPlaying is returned for answers outside the playing phase.
	ErrNotPlaying = errors.New("match is not accepting answers")
	// ErrAlreadyAnswered is returned for a second answer to one question.
	ErrAlreadyAnswered = errors.New("question already answered")
)

// QuickMatchState is the public view of a live quick match.
type QuickMatchState struct {
	MatchID              string    `json:"match_id"`
	Subject              string    `json:"subject"`
	Difficulty           string    `json:"difficulty"`
	Players              []string  `json:"players"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	TotalQuestions       int       `json:"total_questions"`
	Status               string    `json:"status"`
	StartedAt            time.Time `json:"started_at"`
	// WinnerID is set once results are in; empty when every racer left.
	WinnerID string `json:"winner_id,omitempty"`
}

// racer is one player's progress inside a quick match.
type racer struct {
	PlayerID   string
	Username   string
	Score      int
	Correct    int
	Wrong      int
	Answered   int
	Streak     int
	BestStreak int
	Response   time.Duration
	Left       bool
	joinOrder  int
}

func (r *racer) avgResponse() time.Duration {
	if r.Answered == 0 {
		return 0
	}
	return r.Response / time.Duration(r.Answered)
}
