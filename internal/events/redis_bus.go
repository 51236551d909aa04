package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "careledger.events."

// RedisBus publishes events on Redis pub/sub, one channel per event name.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Name, err)
	}
	if err := b.client.Publish(ctx, channelPrefix+e.Name, data).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Name, err)
	}
	return nil
}
