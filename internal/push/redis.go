package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/enduro-dash/enduro-dash/internal/collection"
)

// DefaultRedisChannel is the pub/sub channel monitor updates are relayed on.
const DefaultRedisChannel = "enduro:collection:events"

// RedisSource reads monitor updates relayed over Redis pub/sub.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisSource returns a source subscribed to channel.
func NewRedisSource(client *redis.Client, channel string, logger *slog.Logger) *RedisSource {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{client: client, channel: channel, logger: logger}
}

// Subscribe opens the subscription and forwards message payloads.
func (s *RedisSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("push: redis client not configured")
	}
	pubsub := s.client.Subscribe(ctx, s.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("push: subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("redis subscription open", slog.String("channel", s.channel))

	out := make(chan []byte, collection.EventBufferSize)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					s.logger.Info("redis subscription closed", slog.String("channel", s.channel))
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish relays a raw monitor message onto the channel.
func (s *RedisSource) Publish(ctx context.Context, payload []byte) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}
