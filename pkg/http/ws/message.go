package ws

import (
	"encoding/json"
	"fmt"
)

// MessageType constants for the WebSocket protocol.
const (
	// Client -> Server
	TypeStartGame        = "start_game"
	TypeSubmitAnswer     = "submit_answer"
	TypeAnswerBlockHit   = "answer_block_hit"
	TypeMissedBlocks     = "missed_blocks"
	TypeLanded           = "landed"
	TypeQuitGame         = "quit_game"
	TypeJoinQueue        = "join_queue"
	TypeLeaveQueue       = "leave_queue"
	TypeCreateTournament = "create_tournament"
	TypeJoinTournament   = "join_tournament"
	TypeLeaveTournament  = "leave_tournament"
	TypeStartTournament  = "start_tournament"
	TypeChallengePlayer  = "challenge_player"
	TypeAcceptChallenge  = "accept_challenge"
	TypeDeclineChallenge = "decline_challenge"
	TypeGetLeaderboard   = "get_leaderboard"
	TypeChatCommand      = "chat_command"
	TypePing             = "ping"

	// Server -> Client
	TypeQuestion            = "question"
	TypeAnswerOptions       = "answer-options"
	TypeScoreUpdate         = "score-update"
	TypeWrongAnswer         = "wrong-answer"
	TypeGameOver            = "game-over"
	TypeRaceLobby           = "race-lobby"
	TypeRaceProgress        = "race-progress"
	TypeRaceWinner          = "race-winner"
	TypeTournamentUpdate    = "tournament-update"
	TypeQuickMatchUpdate    = "quick-match-update"
	TypeLeaderboardData     = "leaderboard-data"
	TypeAchievementUnlocked = "achievement-unlocked"
	TypePhysicsUpdate       = "physics-update"
	TypeError               = "error"
	TypePong                = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed envelope.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals the payload into dst.
func (m Message) Decode(dst interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty %s payload", m.Type)
	}
	return json.Unmarshal(m.Payload, dst)
}

// Notify marshals payload once and sends it to every listed player. It
// keeps going after a failed send and returns the first error.
func Notify(s Sender, msgType string, payload interface{}, playerIDs ...string) error {
	if s == nil || len(playerIDs) == 0 {
		return nil
	}
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	var first error
	for _, id := range playerIDs {
		if err := s.SendToPlayer(id, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Client Messages (incoming)

type StartGamePayload struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
	Category   string `json:"category,omitempty"`
}

type SubmitAnswerPayload struct {
	// Context selects the receiver: "session", "quick_match" or "tournament".
	Context string `json:"context"`
	Answer  string `json:"answer"`
}

type AnswerBlockHitPayload struct {
	AnswerValue string `json:"answer_value"`
}

type JoinQueuePayload struct {
	Subject     string `json:"subject"`
	Difficulty  string `json:"difficulty"`
	PlayerCount int    `json:"player_count"`
}

type CreateTournamentPayload struct {
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Subject           string          `json:"subject"`
	Difficulty        string          `json:"difficulty"`
	MinParticipants   int             `json:"min_participants"`
	MaxParticipants   int             `json:"max_participants"`
	QuestionsPerMatch int             `json:"questions_per_match,omitempty"`
	IsPrivate         bool            `json:"is_private"`
	InviteCode        string          `json:"invite_code,omitempty"`
	IsOfficial        bool            `json:"is_official"`
	Rewards           []RewardPayload `json:"rewards,omitempty"`
}

type RewardPayload struct {
	Placement int    `json:"placement"`
	Kind      string `json:"kind"`
	Amount    int    `json:"amount"`
}

type JoinTournamentPayload struct {
	TournamentID string `json:"tournament_id"`
	InviteCode   string `json:"invite_code,omitempty"`
}

type TournamentRefPayload struct {
	TournamentID string `json:"tournament_id"`
}

type ChallengePlayerPayload struct {
	TargetID          string `json:"target_id"`
	Subject           string `json:"subject"`
	Difficulty        string `json:"difficulty"`
	QuestionsPerMatch int    `json:"questions_per_match,omitempty"`
}

type GetLeaderboardPayload struct {
	Board  string `json:"board"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type ChatCommandPayload struct {
	Text string `json:"text"`
}

// Server Messages (outgoing)

type Player struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

type QuestionPayload struct {
	Context          string `json:"context"`
	ContextID        string `json:"context_id"`
	QuestionID       string `json:"question_id"`
	Subject          string `json:"subject"`
	Category         string `json:"category,omitempty"`
	Difficulty       string `json:"difficulty"`
	Text             string `json:"text"`
	Index            int    `json:"index"`
	Total            int    `json:"total"`
	TimeLimitSeconds int    `json:"time_limit_seconds,omitempty"`
}

type AnswerOptionsPayload struct {
	ContextID  string   `json:"context_id"`
	QuestionID string   `json:"question_id"`
	Options    []string `json:"options"`
}

type ScoreUpdatePayload struct {
	ContextID            string  `json:"context_id"`
	BasePoints           int     `json:"base_points"`
	DifficultyMultiplier float64 `json:"difficulty_multiplier"`
	SpeedBonus           float64 `json:"speed_bonus"`
	StreakMultiplier     float64 `json:"streak_multiplier"`
	Points               int     `json:"points"`
	BonusTag             string  `json:"bonus_tag,omitempty"`
	TotalScore           int     `json:"total_score"`
	Streak               int     `json:"streak"`
}

type WrongAnswerPayload struct {
	ContextID     string `json:"context_id"`
	Submitted     string `json:"submitted"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
	TotalScore    int    `json:"total_score"`
}

type GameOverPayload struct {
	TotalScore         int      `json:"total_score"`
	CorrectCount       int      `json:"correct_count"`
	WrongCount         int      `json:"wrong_count"`
	BestStreak         int      `json:"best_streak"`
	AvgResponseSeconds float64  `json:"avg_response_seconds"`
	PerfectGame        bool     `json:"perfect_game"`
	Grade              string   `json:"grade"`
	XPEarned           int      `json:"xp_earned"`
	ImprovedBoards     []string `json:"improved_boards,omitempty"`
	AllTimeRank        int      `json:"all_time_rank,omitempty"`
}

type RaceLobbyPayload struct {
	MatchID          string   `json:"match_id"`
	Players          []Player `json:"players"`
	CountdownSeconds int      `json:"countdown_seconds"`
	Subject          string   `json:"subject"`
	Difficulty       string   `json:"difficulty"`
}

type Standing struct {
	PlayerID       string `json:"player_id"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	Answered       int    `json:"answered"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Left           bool   `json:"left,omitempty"`
}

type RaceProgressPayload struct {
	MatchID       string     `json:"match_id"`
	QuestionIndex int        `json:"question_index"`
	Total         int        `json:"total"`
	Standings     []Standing `json:"standings"`
}

type RaceWinnerPayload struct {
	MatchID   string     `json:"match_id"`
	WinnerID  string     `json:"winner_id"`
	Standings []Standing `json:"standings"`
}

type QuickMatchUpdatePayload struct {
	MatchID  string   `json:"match_id,omitempty"`
	QueueKey string   `json:"queue_key,omitempty"`
	Status   string   `json:"status"`
	Position int      `json:"position,omitempty"`
	Needed   int      `json:"needed,omitempty"`
	Players  []Player `json:"players,omitempty"`
}

type TournamentMatchView struct {
	MatchID        string         `json:"match_id"`
	Participant1ID string         `json:"participant1_id,omitempty"`
	Participant2ID string         `json:"participant2_id,omitempty"`
	Status         string         `json:"status"`
	Scores         map[string]int `json:"scores"`
	QuestionIndex  int            `json:"question_index"`
	TotalQuestions int            `json:"total_questions"`
	WinnerID       string         `json:"winner_id,omitempty"`
	Bye            bool           `json:"bye,omitempty"`
}

type TournamentRoundView struct {
	RoundNumber int                   `json:"round_number"`
	Status      string                `json:"status"`
	Matches     []TournamentMatchView `json:"matches"`
}

type TournamentUpdatePayload struct {
	TournamentID string                `json:"tournament_id"`
	Name         string                `json:"name"`
	Type         string                `json:"type"`
	Status       string                `json:"status"`
	Event        string                `json:"event"`
	InviteCode   string                `json:"invite_code,omitempty"`
	Participants []Player              `json:"participants"`
	CurrentRound int                   `json:"current_round"`
	Rounds       []TournamentRoundView `json:"rounds,omitempty"`
	WinnerID     string                `json:"winner_id,omitempty"`
	RunnerUpID   string                `json:"runner_up_id,omitempty"`
	Question     *QuestionPayload      `json:"question,omitempty"`
	Options      []string              `json:"options,omitempty"`
}

type LeaderboardEntry struct {
	Rank       int                    `json:"rank"`
	PlayerID   string                 `json:"player_id"`
	Username   string                 `json:"username"`
	Score      int                    `json:"score"`
	AchievedAt string                 `json:"achieved_at"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

type LeaderboardDataPayload struct {
	Board      string             `json:"board"`
	Entries    []LeaderboardEntry `json:"entries"`
	Total      int                `json:"total"`
	PlayerRank int                `json:"player_rank,omitempty"`
	NextReset  string             `json:"next_reset,omitempty"`
}

type AchievementUnlockedPayload struct {
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
}

type PhysicsUpdatePayload struct {
	Gravity   float64 `json:"gravity"`
	FallSpeed float64 `json:"fall_speed"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
