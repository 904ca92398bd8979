package question

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownSubject is returned for subjects without a registered generator.
var ErrUnknownSubject = errors.New("unknown subject")

// Registry maps subjects to generators. Tournament matches use Generate and
// handle its errors; solo sessions and quick matches use Next, which always
// returns a question.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	fallback   *MathGenerator
	logger     zerolog.Logger
}

// NewRegistry creates a registry with the arithmetic generator registered
// under "math" and used as the fallback for every subject.
func NewRegistry(logger zerolog.Logger) *Registry {
	math := NewMathGenerator(nil)
	return &Registry{
		generators: map[string]Generator{SubjectMath: math},
		fallback:   math,
		logger:     logger.With().Str("component", "question_registry").Logger(),
	}
}

// Register adds or replaces the generator for subject.
func (r *Registry) Register(subject string, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[strings.ToLower(subject)] = gen
}

// RegisterBanks registers one generator per loaded bank.
func (r *Registry) RegisterBanks(banks map[string]*Bank) {
	for subject, bank := range banks {
		r.Register(subject, bank)
	}
}

// Subjects lists registered subjects in sorted order.
func (r *Registry) Subjects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.generators))
	for s := range r.generators {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Has reports whether subject has a generator.
func (r *Registry) Has(subject string) bool {
	_, ok := r.generator(subject)
	return ok
}

func (r *Registry) generator(subject string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[strings.ToLower(subject)]
	return gen, ok
}

// Generate asks the subject's generator for a question.
func (r *Registry) Generate(ctx context.Context, subject, difficulty, category string) (Question, error) {
	gen, ok := r.generator(subject)
	if !ok {
		return Question{}, fmt.Errorf("generate %q: %w", subject, ErrUnknownSubject)
	}
	q, err := gen.Generate(ctx, difficulty, category)
	if err != nil {
		return Question{}, fmt.Errorf("generate %s/%s: %w", subject, difficulty, err)
	}
	return q, nil
}

// Next is Generate with an arithmetic fallback, so it never comes back empty.
func (r *Registry) Next(ctx context.Context, subject, difficulty, category string) Question {
	q, err := r.Generate(ctx, subject, difficulty, category)
	if err == nil {
		return q
	}
	r.logger.Warn().Err(err).
		Str("subject", subject).
		Str("difficulty", difficulty).
		Msg("question generation failed, using arithmetic fallback")
	q, _ = r.fallback.Generate(ctx, difficulty, "")
	return q
}

// IsCorrect judges answer using the comparison rules of the question's subject.
func (r *Registry) IsCorrect(q Question, answer string) bool {
	gen, ok := r.generator(q.Subject)
	if !ok {
		return textCheck(q, answer)
	}
	return gen.Check(q, answer)
}
