package question

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/question/external"
)

type stubOpentdb struct {
	questions []external.OpenTDBQuestion
	err       error
	calls     int
	lastDiff  string
}

func (s *stubOpentdb) Fetch(_ context.Context, amount int, difficulty string) ([]external.OpenTDBQuestion, error) {
	s.calls++
	s.lastDiff = difficulty
	if s.err != nil {
		return nil, s.err
	}
	return s.questions[:min(amount, len(s.questions))], nil
}

func sampleTrivia() []external.OpenTDBQuestion {
	return []external.OpenTDBQuestion{
		{Category: "Art", Question: "Who painted the Mona Lisa?", CorrectAnswer: "Leonardo da Vinci", IncorrectAnswer: []string{"Michelangelo", "Raphael", "Donatello"}},
		{Category: "Music", Question: "How many strings does a violin have?", CorrectAnswer: "4", IncorrectAnswer: []string{"5", "6", "3"}},
	}
}

func newTestCache(t *testing.T) *RedisBatchCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBatchCache(client, 0)
}

func TestTriviaServesBatchInOrder(t *testing.T) {
	provider := &stubOpentdb{questions: sampleTrivia()}
	gen := NewTriviaGenerator(provider, nil, zerolog.Nop())

	q1, err := gen.Generate(context.Background(), DifficultyModerate, "")
	require.NoError(t, err)
	q2, err := gen.Generate(context.Background(), DifficultyModerate, "")
	require.NoError(t, err)

	assert.Equal(t, "Who painted the Mona Lisa?", q1.Text)
	assert.Equal(t, "How many strings does a violin have?", q2.Text)
	assert.NotEqual(t, q1.ID, q2.ID)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "medium", provider.lastDiff)
	assert.True(t, gen.Check(q1, "leonardo da vinci"))
}

func TestTriviaFallsBackToCache(t *testing.T) {
	cache := newTestCache(t)
	ok := &stubOpentdb{questions: sampleTrivia()}
	gen := NewTriviaGenerator(ok, cache, zerolog.Nop())
	_, err := gen.Generate(context.Background(), DifficultyHard, "")
	require.NoError(t, err)

	down := &stubOpentdb{err: errors.New("timeout")}
	gen = NewTriviaGenerator(down, cache, zerolog.Nop())
	q, err := gen.Generate(context.Background(), DifficultyHard, "")
	require.NoError(t, err)
	assert.Equal(t, "Who painted the Mona Lisa?", q.Text)
	assert.Equal(t, "Leonardo da Vinci", q.CorrectAnswer)
	assert.Equal(t, [3]string{"Michelangelo", "Raphael", "Donatello"}, q.WrongAnswers)
}

func TestTriviaErrorWithoutCache(t *testing.T) {
	gen := NewTriviaGenerator(&stubOpentdb{err: errors.New("offline")}, newTestCache(t), zerolog.Nop())

	_, err := gen.Generate(context.Background(), DifficultyBeginner, "")
	assert.Error(t, err)
}
