package question

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Math categories understood by the arithmetic generator.
const (
	CategoryAddition       = "addition"
	CategorySubtraction    = "subtraction"
	CategoryMultiplication = "multiplication"
	CategoryDivision       = "division"
	CategorySquares        = "squares"
	CategoryMultiStep      = "multi_step"
)

var mathCategories = map[string][]string{
	DifficultyBeginner: {CategoryAddition, CategorySubtraction},
	DifficultyModerate: {CategoryAddition, CategorySubtraction, CategoryMultiplication, CategoryDivision},
	DifficultyHard:     {CategoryMultiplication, CategoryDivision, CategorySquares, CategoryMultiStep},
}

// MathGenerator builds arithmetic questions procedurally, so it never runs out.
type MathGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMathGenerator returns a generator drawing from rnd. A nil rnd seeds from
// the global source.
func NewMathGenerator(rnd *rand.Rand) *MathGenerator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &MathGenerator{rnd: rnd}
}

func (g *MathGenerator) Generate(_ context.Context, difficulty, category string) (Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.build(NormalizeDifficulty(difficulty), category), nil
}

// Check compares numerically so "4", "4.0" and " 4 " all match 4.
func (g *MathGenerator) Check(q Question, answer string) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer), 64)
	if err != nil {
		return false
	}
	got, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil {
		return false
	}
	return math.Abs(want-got) < 1e-9
}

func (g *MathGenerator) build(difficulty, category string) Question {
	cats := mathCategories[difficulty]
	if !containsString(cats, category) {
		category = cats[g.rnd.Intn(len(cats))]
	}

	var text string
	var answer int
	switch difficulty {
	case DifficultyBeginner:
		text, answer = g.beginner(category)
	case DifficultyModerate:
		text, answer = g.moderate(category)
	default:
		text, answer = g.hard(category)
	}

	return Question{
		ID:            uuid.NewString(),
		Subject:       SubjectMath,
		Category:      category,
		Difficulty:    difficulty,
		Text:          text,
		CorrectAnswer: strconv.Itoa(answer),
		WrongAnswers:  g.distractors(answer),
	}
}

func (g *MathGenerator) beginner(category string) (string, int) {
	a, b := g.rnd.Intn(19)+1, g.rnd.Intn(19)+1
	if category == CategorySubtraction {
		if b > a {
			a, b = b, a
		}
		return fmt.Sprintf("%d - %d", a, b), a - b
	}
	for a+b >= 20 {
		a, b = g.rnd.Intn(10)+1, g.rnd.Intn(9)+1
	}
	return fmt.Sprintf("%d + %d", a, b), a + b
}

func (g *MathGenerator) moderate(category string) (string, int) {
	switch category {
	case CategoryMultiplication:
		a, b := g.rnd.Intn(11)+2, g.rnd.Intn(11)+2
		return fmt.Sprintf("%d × %d", a, b), a * b
	case CategoryDivision:
		b, q := g.rnd.Intn(11)+2, g.rnd.Intn(11)+2
		return fmt.Sprintf("%d ÷ %d", b*q, b), q
	case CategorySubtraction:
		a, b := g.rnd.Intn(90)+10, g.rnd.Intn(90)+10
		if b > a {
			a, b = b, a
		}
		return fmt.Sprintf("%d - %d", a, b), a - b
	default:
		a, b := g.rnd.Intn(90)+10, g.rnd.Intn(90)+10
		return fmt.Sprintf("%d + %d", a, b), a + b
	}
}

func (g *MathGenerator) hard(category string) (string, int) {
	switch category {
	case CategorySquares:
		n := g.rnd.Intn(15) + 11
		return fmt.Sprintf("%d²", n), n * n
	case CategoryDivision:
		b, q := g.rnd.Intn(15)+6, g.rnd.Intn(20)+6
		return fmt.Sprintf("%d ÷ %d", b*q, b), q
	case CategoryMultiStep:
		a, b, c := g.rnd.Intn(12)+3, g.rnd.Intn(12)+3, g.rnd.Intn(50)+5
		if g.rnd.Intn(2) == 0 {
			return fmt.Sprintf("%d × %d + %d", a, b, c), a*b + c
		}
		return fmt.Sprintf("(%d + %d) × %d", c, a, b), (c + a) * b
	default:
		a, b := g.rnd.Intn(90)+10, g.rnd.Intn(8)+12
		return fmt.Sprintf("%d × %d", a, b), a * b
	}
}

// distractors picks three distinct values near the answer, never negative
// when the answer is not.
func (g *MathGenerator) distractors(answer int) [3]string {
	offsets := []int{-10, -3, -2, -1, 1, 2, 3, 10}
	g.rnd.Shuffle(len(offsets), func(i, j int) { offsets[i], offsets[j] = offsets[j], offsets[i] })

	var out [3]string
	n := 0
	for _, off := range offsets {
		v := answer + off
		if answer >= 0 && v < 0 {
			continue
		}
		out[n] = strconv.Itoa(v)
		n++
		if n == len(out) {
			break
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
