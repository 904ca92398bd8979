package question

import (
	"math/rand"
	"strings"
)

// Difficulty constants for readability.
const (
	DifficultyBeginner = "beginner"
	DifficultyModerate = "moderate"
	DifficultyHard     = "hard"
)

// Subject constants for the built-in generators.
const (
	SubjectMath      = "math"
	SubjectSpelling  = "spelling"
	SubjectGeography = "geography"
	SubjectScience   = "science"
	SubjectHistory   = "history"
	SubjectTrivia    = "trivia"
)

// Question is one generated prompt with exactly one correct answer and three
// distractors. Questions are immutable once generated and never persisted.
type Question struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	Category      string    `json:"category,omitempty"`
	Difficulty    string    `json:"difficulty"`
	Text          string    `json:"text"`
	CorrectAnswer string    `json:"-"`
	WrongAnswers  [3]string `json:"-"`
	Explanation   string    `json:"explanation,omitempty"`
}

// Options returns the four answers in an order picked by rnd.
func (q Question) Options(rnd *rand.Rand) []string {
	opts := []string{q.CorrectAnswer, q.WrongAnswers[0], q.WrongAnswers[1], q.WrongAnswers[2]}
	if rnd == nil {
		rand.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		return opts
	}
	rnd.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	return opts
}

// ValidDifficulty reports whether d is one of the supported difficulties.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyBeginner, DifficultyModerate, DifficultyHard:
		return true
	}
	return false
}

// NormalizeDifficulty maps loose client input onto a supported difficulty,
// defaulting to beginner.
func NormalizeDifficulty(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case DifficultyModerate, "medium", "normal":
		return DifficultyModerate
	case DifficultyHard, "expert":
		return DifficultyHard
	default:
		return DifficultyBeginner
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
