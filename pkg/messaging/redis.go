package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher publishes JSON messages on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Envelope wraps every published payload.
type Envelope struct {
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	Published time.Time       `json:"published_at"`
}

type redisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher publishes through an existing redis client.
func NewRedisPublisher(client redis.UniversalClient) Publisher {
	return &redisPublisher{client: client}
}

func (r *redisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	envelope, err := json.Marshal(Envelope{
		Channel:   channel,
		Payload:   payload,
		Published: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := r.client.Publish(ctx, channel, envelope).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// NopPublisher drops every message. Used when redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
