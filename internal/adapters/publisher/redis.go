package publisher

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis publishes final summaries on a pub/sub channel and keeps the latest
// live summary per window key in a hash.
type Redis struct {
	client  redis.Cmdable
	channel string
	hashKey string
}

// NewRedis creates a Redis publisher.
func NewRedis(client redis.Cmdable, channel, hashKey string) *Redis {
	return &Redis{client: client, channel: channel, hashKey: hashKey}
}

// PublishSummary implements Publisher.
func (p *Redis) PublishSummary(ctx context.Context, text string) error {
	if err := p.client.Publish(ctx, p.channel, text).Err(); err != nil {
		return fmt.Errorf("%w: redis publish %s: %w", ErrDelivery, p.channel, err)
	}
	return nil
}

// UpdateSummary implements Publisher.
func (p *Redis) UpdateSummary(ctx context.Context, key, text string) error {
	if err := p.client.HSet(ctx, p.hashKey, key, text).Err(); err != nil {
		return fmt.Errorf("%w: redis hset %s: %w", ErrDelivery, p.hashKey, err)
	}
	return nil
}
