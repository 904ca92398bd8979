// Package profile persists per-player progress: lifetime stats, the daily
// play streak, achievements, tournament history and granted rewards.
package profile

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxTournamentHistory bounds the tournament records kept per player.
const MaxTournamentHistory = 20

// Stats are lifetime totals across every finished game.
type Stats struct {
	GamesPlayed        int     `json:"games_played"`
	GamesWon           int     `json:"games_won"`
	TotalScore         int     `json:"total_score"`
	TotalCorrect       int     `json:"total_correct"`
	TotalWrong         int     `json:"total_wrong"`
	BestScore          int     `json:"best_score"`
	BestStreak         int     `json:"best_streak"`
	PerfectGames       int     `json:"perfect_games"`
	TotalXP            int     `json:"total_xp"`
	Level              int     `json:"level"`
	FastestAvgResponse float64 `json:"fastest_avg_response"` // seconds, 0 when unset
}

// DailyStreak counts consecutive UTC days with at least one finished game.
type DailyStreak struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	LastPlayedDate string `json:"last_played_date,omitempty"`
}

// TournamentRecord is one finished tournament from the player's view.
type TournamentRecord struct {
	TournamentID string    `json:"tournament_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Placement    int       `json:"placement"` // 1 winner, 2 runner-up, 0 eliminated
	Participants int       `json:"participants"`
	FinishedAt   time.Time `json:"finished_at"`
}

// TournamentStats summarises tournament participation.
type TournamentStats struct {
	Played   int                `json:"played"`
	Won      int                `json:"won"`
	RunnerUp int                `json:"runner_up"`
	History  []TournamentRecord `json:"history"`
}

// Reward is something handed to a player, e.g. coins or a badge.
type Reward struct {
	Kind   string `json:"kind"`
	Amount int    `json:"amount"`
}

// GrantedReward remembers a reward under its grant key.
type GrantedReward struct {
	Reward
	GrantedAt time.Time `json:"granted_at"`
}

// Profile is the durable per-player document. New fields must have a
// sensible zero value or a default in DefaultProfile, since stored documents
// are decoded on top of the defaults.
type Profile struct {
	PlayerID     string                   `json:"player_id"`
	Username     string                   `json:"username"`
	Stats        Stats                    `json:"stats"`
	Achievements map[string]time.Time     `json:"achievements"`
	Streak       DailyStreak              `json:"streak"`
	Tournaments  TournamentStats          `json:"tournaments"`
	Rewards      map[string]GrantedReward `json:"rewards"`
	Balances     map[string]int           `json:"balances"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// DefaultProfile returns the profile of a player who has never played.
func DefaultProfile(playerID string) *Profile {
	return &Profile{
		PlayerID:     playerID,
		Stats:        Stats{Level: 1},
		Achievements: make(map[string]time.Time),
		Tournaments:  TournamentStats{History: []TournamentRecord{}},
		Rewards:      make(map[string]GrantedReward),
		Balances:     make(map[string]int),
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Achievements = make(map[string]time.Time, len(p.Achievements))
	for k, v := range p.Achievements {
		cp.Achievements[k] = v
	}
	cp.Rewards = make(map[string]GrantedReward, len(p.Rewards))
	for k, v := range p.Rewards {
		cp.Rewards[k] = v
	}
	cp.Balances = make(map[string]int, len(p.Balances))
	for k, v := range p.Balances {
		cp.Balances[k] = v
	}
	cp.Tournaments.History = append([]TournamentRecord{}, p.Tournaments.History...)
	return &cp
}

// Decode reads a stored document on top of DefaultProfile so fields missing
// from older documents keep their defaults.
func Decode(playerID string, data []byte) (*Profile, error) {
	p := DefaultProfile(playerID)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", playerID, err)
	}
	if p.PlayerID == "" {
		p.PlayerID = playerID
	}
	if p.Achievements == nil {
		p.Achievements = make(map[string]time.Time)
	}
	if p.Rewards == nil {
		p.Rewards = make(map[string]GrantedReward)
	}
	if p.Balances == nil {
		p.Balances = make(map[string]int)
	}
	if p.Tournaments.History == nil {
		p.Tournaments.History = []TournamentRecord{}
	}
	if p.Stats.Level < 1 {
		p.Stats.Level = 1
	}
	return p, nil
}

// LevelForXP maps lifetime XP to a level, one level per 1000 XP.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + xp/1000
}
