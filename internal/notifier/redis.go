package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSink publishes events on redis pub/sub so other instances can relay
// them to their own sessions. Channel is "<prefix>:<stream key>".
type RedisSink struct {
	client *redis.Client
	prefix string
}

func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "router"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Channel(event Event) string {
	return s.prefix + ":" + event.StreamKey()
}

func (s *RedisSink) Deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis sink: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(event), string(payload)).Err(); err != nil {
		return fmt.Errorf("redis sink: publish: %w", err)
	}
	return nil
}
