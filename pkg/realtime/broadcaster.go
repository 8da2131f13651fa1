package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is a queue mutation fan-out payload published to observers.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// RedisBroadcaster publishes queue updates over a Redis pub/sub channel.
// Connected websocket gateways subscribe to the channel and fan out to
// browsers; this process only publishes.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBroadcaster constructs a broadcaster for the given channel.
func NewRedisBroadcaster(client *redis.Client, channel string, logger *zap.Logger) *RedisBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

// Publish sends one event. Failures are returned for the caller to log;
// publishing never retries.
func (b *RedisBroadcaster) Publish(ctx context.Context, event string, payload interface{}) error {
	body, err := json.Marshal(Event{Name: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event, err)
	}
	return nil
}
