package question

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 30 * time.Minute

// BatchCache keeps the last successful trivia batch per difficulty so the
// trivia subject keeps working while the upstream API is unreachable.
type BatchCache interface {
	Get(ctx context.Context, difficulty string) ([]Question, error)
	Set(ctx context.Context, difficulty string, batch []Question) error
}

// RedisBatchCache stores trivia batches in Redis.
type RedisBatchCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ BatchCache = (*RedisBatchCache)(nil)

func NewRedisBatchCache(client redis.UniversalClient, ttl time.Duration) *RedisBatchCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisBatchCache{client: client, ttl: ttl}
}

func (c *RedisBatchCache) key(difficulty string) string {
	return "questions:trivia:" + difficulty
}

// cachedQuestion mirrors Question with the answers exported, since Question
// hides them from client-facing JSON.
type cachedQuestion struct {
	Question
	CorrectAnswer string    `json:"correct_answer"`
	WrongAnswers  [3]string `json:"wrong_answers"`
}

func (c *RedisBatchCache) Get(ctx context.Context, difficulty string) ([]Question, error) {
	data, err := c.client.Get(ctx, c.key(difficulty)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var stored []cachedQuestion
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(stored))
	for _, s := range stored {
		q := s.Question
		q.CorrectAnswer = s.CorrectAnswer
		q.WrongAnswers = s.WrongAnswers
		out = append(out, q)
	}
	return out, nil
}

func (c *RedisBatchCache) Set(ctx context.Context, difficulty string, batch []Question) error {
	stored := make([]cachedQuestion, 0, len(batch))
	for _, q := range batch {
		stored = append(stored, cachedQuestion{Question: q, CorrectAnswer: q.CorrectAnswer, WrongAnswers: q.WrongAnswers})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(difficulty), data, c.ttl).Err()
}
