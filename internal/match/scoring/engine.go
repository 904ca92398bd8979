package scoring

import (
	"math"
	"time"
)

// Difficulty names accepted by the engine. Unknown values score as beginner.
const (
	DifficultyBeginner = "beginner"
	DifficultyModerate = "moderate"
	DifficultyHard     = "hard"
)

// Bonus tags attached to a breakdown for the presentation layer.
const (
	TagLightning   = "lightning"
	TagOnFire      = "on-fire"
	TagUnstoppable = "unstoppable"
)

// Tier is one stepped threshold: values at or past Threshold get Multiplier.
type Tier struct {
	Threshold  float64
	Multiplier float64
}

// ScoringConfig holds configurable scoring constants (defaults match gameplay rules).
type ScoringConfig struct {
	BasePoints          int                // default: 100
	DifficultyMult      map[string]float64 // beginner 1, moderate 2, hard 3
	SpeedTiers          []Tier             // ascending seconds; first tier with seconds <= Threshold wins
	StreakTiers         []Tier             // descending streak; first tier with streak >= Threshold wins
	MaxStreakMultiplier float64            // default: 2.0
	PerfectGameBonus    int                // default: 500, scaled by difficulty
	MinPerfectQuestions int                // default: 10
	XPRate              float64            // default: 0.1
}

// DefaultScoringConfig returns production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BasePoints: 100,
		DifficultyMult: map[string]float64{
			DifficultyBeginner: 1.0,
			DifficultyModerate: 2.0,
			DifficultyHard:     3.0,
		},
		SpeedTiers: []Tier{
			{Threshold: 1.5, Multiplier: 2.0},
			{Threshold: 3, Multiplier: 1.5},
			{Threshold: 5, Multiplier: 1.25},
			{Threshold: 8, Multiplier: 1.1},
		},
		StreakTiers: []Tier{
			{Threshold: 10, Multiplier: 2.0},
			{Threshold: 7, Multiplier: 1.75},
			{Threshold: 5, Multiplier: 1.5},
			{Threshold: 3, Multiplier: 1.25},
			{Threshold: 2, Multiplier: 1.1},
		},
		MaxStreakMultiplier: 2.0,
		PerfectGameBonus:    500,
		MinPerfectQuestions: 10,
		XPRate:              0.1,
	}
}

// Breakdown explains how the points for one correct answer were reached.
type Breakdown struct {
	BasePoints           int     `json:"base_points"`
	DifficultyMultiplier float64 `json:"difficulty_multiplier"`
	SpeedBonus           float64 `json:"speed_bonus"`
	StreakMultiplier     float64 `json:"streak_multiplier"`
	TotalPoints          int     `json:"total_points"`
	BonusTag             string  `json:"bonus_tag,omitempty"`
}

// Engine computes server-side scores with configurable constants. It holds no
// per-player state and is safe for concurrent use.
type Engine struct {
	config ScoringConfig
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config ScoringConfig) *Engine {
	return &Engine{config: config}
}

// Config returns the engine's configuration.
func (e *Engine) Config() ScoringConfig {
	return e.config
}

// Calculate scores one correct answer. streak is the streak length including
// this answer.
// Formula: round(base × difficulty × speed × streak)
func (e *Engine) Calculate(difficulty string, responseTime time.Duration, streak int) Breakdown {
	b := Breakdown{
		BasePoints:           e.config.BasePoints,
		DifficultyMultiplier: e.DifficultyMultiplier(difficulty),
		SpeedBonus:           e.SpeedBonus(responseTime),
		StreakMultiplier:     e.StreakMultiplier(streak),
	}
	b.TotalPoints = int(math.Round(float64(b.BasePoints) * b.DifficultyMultiplier * b.SpeedBonus * b.StreakMultiplier))

	switch {
	case streak >= 10:
		b.BonusTag = TagUnstoppable
	case streak >= 5:
		b.BonusTag = TagOnFire
	case len(e.config.SpeedTiers) > 0 && b.SpeedBonus >= e.config.SpeedTiers[0].Multiplier:
		b.BonusTag = TagLightning
	}
	return b
}

// DifficultyMultiplier returns the multiplier for difficulty, 1.0 when unknown.
func (e *Engine) DifficultyMultiplier(difficulty string) float64 {
	if m, ok := e.config.DifficultyMult[difficulty]; ok {
		return m
	}
	return 1.0
}

// SpeedBonus steps on response time; the first matching tier wins.
func (e *Engine) SpeedBonus(responseTime time.Duration) float64 {
	secs := responseTime.Seconds()
	for _, tier := range e.config.SpeedTiers {
		if secs <= tier.Threshold {
			return tier.Multiplier
		}
	}
	return 1.0
}

// StreakMultiplier steps on streak length; the first matching tier wins.
func (e *Engine) StreakMultiplier(streak int) float64 {
	for _, tier := range e.config.StreakTiers {
		if float64(streak) >= tier.Threshold {
			return math.Min(tier.Multiplier, e.config.MaxStreakMultiplier)
		}
	}
	return 1.0
}

// PerfectBonus returns the end-of-game bonus for a flawless run, or 0.
func (e *Engine) PerfectBonus(difficulty string, correct, total int) int {
	if correct != total || total < e.config.MinPerfectQuestions {
		return 0
	}
	return int(math.Round(float64(e.config.PerfectGameBonus) * e.DifficultyMultiplier(difficulty)))
}

// XP converts a final score into experience points.
func (e *Engine) XP(finalScore int) int {
	return int(math.Floor(float64(finalScore) * e.config.XPRate))
}

// Grade maps accuracy (0..1), average response seconds and best streak onto a
// letter grade using a 60/25/15 weighting.
func Grade(accuracy, avgResponseSeconds float64, bestStreak int) string {
	speedScore := math.Max(0, 100-avgResponseSeconds*10)
	streakScore := math.Min(100, float64(bestStreak)*10)
	weighted := 0.6*accuracy*100 + 0.25*speedScore + 0.15*streakScore

	switch {
	case weighted >= 95:
		return "S"
	case weighted >= 85:
		return "A"
	case weighted >= 70:
		return "B"
	case weighted >= 55:
		return "C"
	case weighted >= 40:
		return "D"
	default:
		return "F"
	}
}
