package callback

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublish publishes Message on Channel. It fails when nobody is
// subscribed, because then the side effect did not reach anyone.
type RedisPublish struct {
	client  *redis.Client
	channel string
	message string
}

func NewRedisPublish(client *redis.Client, channel, message string) *RedisPublish {
	if message == "" {
		message = "open"
	}
	return &RedisPublish{client: client, channel: channel, message: message}
}

func (p *RedisPublish) Call(ctx context.Context) error {
	n, err := p.client.Publish(ctx, p.channel, p.message).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	if n == 0 {
		return fmt.Errorf("publish to %s: no subscribers", p.channel)
	}
	return nil
}
