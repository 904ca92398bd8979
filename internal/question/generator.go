package question

import (
	"context"
	"errors"
)

// ErrNoQuestions is returned when a generator has nothing for the requested
// difficulty or category.
var ErrNoQuestions = errors.New("no questions available")

// Generator produces questions for one subject and judges answers to them.
type Generator interface {
	Generate(ctx context.Context, difficulty, category string) (Question, error)
	Check(q Question, answer string) bool
}

// textCheck is the comparison shared by word-based subjects: case-insensitive
// with surrounding and repeated whitespace ignored.
func textCheck(q Question, answer string) bool {
	return normalizeText(answer) != "" && normalizeText(answer) == normalizeText(q.CorrectAnswer)
}
