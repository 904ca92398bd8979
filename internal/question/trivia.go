package question

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/question/external"
)

const triviaBatchSize = 10

type triviaProvider interface {
	Fetch(ctx context.Context, amount int, difficulty string) ([]external.OpenTDBQuestion, error)
}

// TriviaGenerator serves general-knowledge questions from OpenTDB, fetched
// in batches and handed out one at a time.
type TriviaGenerator struct {
	provider triviaProvider
	cache    BatchCache
	logger   zerolog.Logger

	mu      sync.Mutex
	buffers map[string][]Question
}

func NewTriviaGenerator(provider triviaProvider, cache BatchCache, logger zerolog.Logger) *TriviaGenerator {
	return &TriviaGenerator{
		provider: provider,
		cache:    cache,
		logger:   logger.With().Str("component", "trivia_generator").Logger(),
		buffers:  make(map[string][]Question),
	}
}

func (g *TriviaGenerator) Generate(ctx context.Context, difficulty, _ string) (Question, error) {
	difficulty = NormalizeDifficulty(difficulty)

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.buffers[difficulty]) == 0 {
		batch, err := g.refill(ctx, difficulty)
		if err != nil {
			return Question{}, err
		}
		g.buffers[difficulty] = batch
	}

	buf := g.buffers[difficulty]
	q := buf[0]
	g.buffers[difficulty] = buf[1:]
	q.ID = uuid.NewString()
	return q, nil
}

func (g *TriviaGenerator) Check(q Question, answer string) bool {
	return textCheck(q, answer)
}

func (g *TriviaGenerator) refill(ctx context.Context, difficulty string) ([]Question, error) {
	raw, err := g.provider.Fetch(ctx, triviaBatchSize, external.Difficulty(difficulty))
	if err == nil && len(raw) > 0 {
		batch := make([]Question, 0, len(raw))
		for _, r := range raw {
			batch = append(batch, Question{
				Subject:       SubjectTrivia,
				Category:      r.Category,
				Difficulty:    difficulty,
				Text:          r.Question,
				CorrectAnswer: r.CorrectAnswer,
				WrongAnswers:  [3]string{r.IncorrectAnswer[0], r.IncorrectAnswer[1], r.IncorrectAnswer[2]},
			})
		}
		if g.cache != nil {
			if cerr := g.cache.Set(ctx, difficulty, batch); cerr != nil {
				g.logger.Warn().Err(cerr).Str("difficulty", difficulty).Msg("trivia batch cache write failed")
			}
		}
		return batch, nil
	}
	if err == nil {
		err = ErrNoQuestions
	}

	g.logger.Warn().Err(err).Str("difficulty", difficulty).Msg("opentdb fetch failed, trying cache")
	if g.cache != nil {
		cached, cerr := g.cache.Get(ctx, difficulty)
		if cerr == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	return nil, fmt.Errorf("trivia %s: %w", difficulty, err)
}
