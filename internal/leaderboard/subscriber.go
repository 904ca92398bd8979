package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// RedisPublisher sends board updates over Redis Pub/Sub so every API
// instance can forward them to its own clients.
type RedisPublisher struct {
	redis   redis.UniversalClient
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = "lb:updates"
	}
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, update ws.LeaderboardDataPayload) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish leaderboard update: %w", err)
	}
	return nil
}

// DirectPublisher broadcasts updates straight to connected clients. It is
// used when no Redis is configured.
type DirectPublisher struct {
	sender ws.Sender
}

var _ Publisher = (*DirectPublisher)(nil)

func NewDirectPublisher(sender ws.Sender) *DirectPublisher {
	return &DirectPublisher{sender: sender}
}

func (p *DirectPublisher) Publish(_ context.Context, update ws.LeaderboardDataPayload) error {
	msg, err := ws.NewMessage(ws.TypeLeaderboardData, update)
	if err != nil {
		return err
	}
	return p.sender.Broadcast(msg)
}

// Broadcaster listens for Redis Pub/Sub leaderboard updates and forwards them to all clients.
type Broadcaster struct {
	redis   redis.UniversalClient
	sender  ws.Sender
	channel string
	logger  zerolog.Logger
	ready   chan struct{}
}

// NewBroadcaster creates a Pub/Sub powered leaderboard broadcaster.
func NewBroadcaster(client redis.UniversalClient, sender ws.Sender, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = "lb:updates"
	}
	return &Broadcaster{
		redis:   client,
		sender:  sender,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Logger(),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is active.
func (b *Broadcaster) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the update channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.sender == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	close(b.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg.Payload)
		}
	}
}

func (b *Broadcaster) forward(payload string) {
	var evt ws.LeaderboardDataPayload
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode leaderboard update payload")
		return
	}

	msg, err := ws.NewMessage(ws.TypeLeaderboardData, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal leaderboard WS payload")
		return
	}
	if err := b.sender.Broadcast(msg); err != nil {
		b.logger.Warn().Err(err).Msg("failed to broadcast leaderboard update")
	}
}
