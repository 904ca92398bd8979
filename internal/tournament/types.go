// Package tournament runs multi-round competitions: bracket elimination,
// round-robin leagues, single N-player matches and direct challenges.
package tournament

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/schedule"
)

// Tournament kinds.
const (
	TypeQuickMatch = "quick_match"
	TypeBracket    = "bracket"
	TypeLeague     = "league"
	TypeChallenge  = "challenge"
)

// Tournament lifecycle states.
const (
	StatusWaiting    = "waiting"
	StatusStarting   = "starting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Match and round states. A stalled match could not get a question after
// every retry and is resolved by forfeit.
const (
	MatchPending    = "pending"
	MatchInProgress = "in_progress"
	MatchStalled    = "stalled"
	MatchCompleted  = "completed"
)

// Events carried by tournament-update messages.
const (
	EventCreated        = "created"
	EventChallenge      = "challenge"
	EventJoined         = "joined"
	EventLeft           = "left"
	EventStarted        = "started"
	EventRoundStarted   = "round_started"
	EventQuestion       = "question"
	EventMatchProgress  = "match_progress"
	EventMatchCompleted = "match_completed"
	EventRoundCompleted = "round_completed"
	EventCompleted      = "completed"
	EventCancelled      = "cancelled"
)

const (
	minNameLength    = 3
	maxNameLength    = 64
	maxQuickMatch    = 4
	minLeague        = 4
	defaultQuestions = 5
	maxQuestions     = 50
)

// bracketSizes are the capacities a bracket may be created with.
var bracketSizes = map[int]bool{4: true, 8: true, 16: true, 32: true}

var (
	// ErrInvalidConfig wraps every rejected tournament configuration.
	ErrInvalidConfig = errors.New("invalid tournament config")
	// ErrNotFound is returned for unknown tournament IDs.
	ErrNotFound = errors.New("tournament not found")
	// ErrAlreadyInActivity is returned when the player is already queued,
	// playing or in another tournament.
	ErrAlreadyInActivity = errors.New("player is already in another activity")
	// ErrNotJoinable is returned when the tournament no longer accepts players.
	ErrNotJoinable = errors.New("tournament is not accepting players")
	// ErrFull is returned when the tournament is at capacity.
	ErrFull = errors.New("tournament is full")
	// ErrInviteCodeMismatch is returned for a wrong or missing invite code.
	ErrInviteCodeMismatch = errors.New("invite code does not match")
	// ErrNotParticipant is returned when the player is not in the tournament.
	ErrNotParticipant = errors.New("player is not in this tournament")
	// ErrNotCreator is returned when someone other than the creator starts or cancels.
	ErrNotCreator = errors.New("only the creator may do that")
	// ErrNotEnoughPlayers is returned when starting below the minimum.
	ErrNotEnoughPlayers = errors.New("not enough participants to start")
	// ErrNoActiveMatch is returned for answers while the player has no open question.
	ErrNoActiveMatch = errors.New("no open question for player")
	// ErrAlreadyAnswered is returned for a second answer to one question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNotInvited is returned when accepting or declining someone else's challenge.
	ErrNotInvited = errors.New("challenge was not sent to this player")
)

// Reward is paid to the participant finishing at Placement. Rewards are only
// allowed on official tournaments.
type Reward struct {
	Placement int    `json:"placement"`
	Kind      string `json:"kind"`
	Amount    int    `json:"amount"`
}

// Config describes a tournament at creation time.
type Config struct {
	Name              string        `json:"name"`
	Type              string        `json:"type"`
	Subject           string        `json:"subject"`
	Difficulty        string        `json:"difficulty"`
	MinParticipants   int           `json:"min_participants"`
	MaxParticipants   int           `json:"max_participants"`
	QuestionsPerMatch int           `json:"questions_per_match"`
	IsPrivate         bool          `json:"is_private"`
	InviteCode        string        `json:"invite_code,omitempty"`
	IsOfficial        bool          `json:"is_official"`
	Rewards           []Reward      `json:"rewards,omitempty"`
	AutoStartDelay    time.Duration `json:"auto_start_delay,omitempty"`
}

// Normalize fills defaults in place.
func (c *Config) Normalize(defaultQuestionsPerMatch int) {
	c.Name = strings.TrimSpace(c.Name)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	c.Subject = strings.ToLower(strings.TrimSpace(c.Subject))
	if c.Subject == "" {
		c.Subject = question.SubjectMath
	}
	c.Difficulty = question.NormalizeDifficulty(c.Difficulty)
	if c.QuestionsPerMatch <= 0 {
		c.QuestionsPerMatch = defaultQuestionsPerMatch
	}
	if c.QuestionsPerMatch <= 0 {
		c.QuestionsPerMatch = defaultQuestions
	}
	if c.Type == TypeChallenge {
		c.MinParticipants, c.MaxParticipants = 2, 2
	}
	if c.MinParticipants <= 0 {
		c.MinParticipants = 2
		if c.Type == TypeBracket || c.Type == TypeLeague {
			c.MinParticipants = 4
		}
	}
	c.InviteCode = strings.ToUpper(strings.TrimSpace(c.InviteCode))
}

// Validate checks the per-type participant rules and reward policy.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if n := len([]rune(c.Name)); n < minNameLength || n > maxNameLength {
		return invalid("name must be %d-%d characters", minNameLength, maxNameLength)
	}
	if c.MinParticipants < 2 {
		return invalid("min participants must be at least 2")
	}
	if c.MaxParticipants < c.MinParticipants {
		return invalid("max participants %d below min %d", c.MaxParticipants, c.MinParticipants)
	}
	if c.QuestionsPerMatch > maxQuestions {
		return invalid("at most %d questions per match", maxQuestions)
	}

	switch c.Type {
	case TypeQuickMatch:
		if c.MaxParticipants > maxQuickMatch {
			return invalid("quick match allows at most %d participants", maxQuickMatch)
		}
	case TypeBracket:
		if !bracketSizes[c.MaxParticipants] {
			return invalid("bracket size must be 4, 8, 16 or 32")
		}
		if c.MinParticipants < 4 {
			return invalid("bracket needs at least 4 participants")
		}
	case TypeLeague:
		if c.MinParticipants < minLeague {
			return invalid("league needs at least %d participants", minLeague)
		}
	case TypeChallenge:
		if c.MinParticipants != 2 || c.MaxParticipants != 2 {
			return invalid("challenge is exactly 2 participants")
		}
	default:
		return invalid("unknown type %q", c.Type)
	}

	if len(c.Rewards) > 0 && !c.IsOfficial {
		return invalid("rewards require an official tournament")
	}
	for _, r := range c.Rewards {
		if r.Placement < 1 || r.Placement > 2 {
			return invalid("reward placement %d not awarded", r.Placement)
		}
		if r.Kind == "" || r.Amount <= 0 {
			return invalid("reward needs a kind and a positive amount")
		}
	}
	if c.InviteCode != "" && !validInviteCode(c.InviteCode) {
		return invalid("invite code must be %d characters from %s", inviteCodeLength, inviteAlphabet)
	}
	return nil
}

// Participant is one entrant.
type Participant struct {
	PlayerID     string    `json:"player_id"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joined_at"`
	Disconnected bool      `json:"disconnected,omitempty"`
	Eliminated   bool      `json:"eliminated,omitempty"`
	Wins         int       `json:"wins"`
	Points       int       `json:"points"`
}

// Match is a head-to-head (or N-player) contest inside a round. Players may
// be empty while a later bracket round waits for winners.
type Match struct {
	ID             string         `json:"match_id"`
	Round          int            `json:"round"`
	Players        []string       `json:"players"`
	Status         string         `json:"status"`
	Scores         map[string]int `json:"scores"`
	QuestionIndex  int            `json:"question_index"`
	TotalQuestions int            `json:"total_questions"`
	WinnerID       string         `json:"winner_id,omitempty"`
	Bye            bool           `json:"bye,omitempty"`

	correct  map[string]int
	streak   map[string]int
	response map[string]time.Duration
	answers  map[string]int

	current       question.Question
	open          bool
	questionStart time.Time
	answered      map[string]bool
	backoff       retry.Backoff
	timer         schedule.Timer
}

// Round groups the matches played at the same time.
type Round struct {
	Number  int      `json:"round_number"`
	Status  string   `json:"status"`
	Matches []*Match `json:"matches"`
}

// Tournament is the full state of one competition. It is guarded by mu;
// readers get a View.
type Tournament struct {
	mu sync.Mutex

	ID           string
	Config       Config
	CreatorID    string
	Status       string
	InviteCode   string
	Participants []*Participant
	Rounds       []*Round
	CurrentRound int
	WinnerID     string
	RunnerUpID   string
	Placements   map[string]int
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time

	invited string
	// waitTimer fires while waiting: the auto start, or a challenge's expiry.
	waitTimer  schedule.Timer
	roundTimer schedule.Timer
	endTimer   schedule.Timer
}

func (t *Tournament) participant(playerID string) *Participant {
	for _, p := range t.Participants {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (t *Tournament) connected(playerID string) bool {
	p := t.participant(playerID)
	return p != nil && !p.Disconnected
}

func (t *Tournament) playerIDs() []string {
	ids := make([]string, len(t.Participants))
	for i, p := range t.Participants {
		ids[i] = p.PlayerID
	}
	return ids
}

// connectedIDs lists participants who should still receive updates.
func (t *Tournament) connectedIDs() []string {
	ids := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		if !p.Disconnected {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids
}

func (t *Tournament) match(matchID string) *Match {
	for _, r := range t.Rounds {
		for _, m := range r.Matches {
			if m.ID == matchID {
				return m
			}
		}
	}
	return nil
}

// activeMatch returns the in-progress match the player is playing in.
func (t *Tournament) activeMatch(playerID string) *Match {
	if t.CurrentRound < 1 || t.CurrentRound > len(t.Rounds) {
		return nil
	}
	for _, m := range t.Rounds[t.CurrentRound-1].Matches {
		if m.Status != MatchInProgress {
			continue
		}
		for _, id := range m.Players {
			if id == playerID {
				return m
			}
		}
	}
	return nil
}

func (t *Tournament) finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}
