package publisher

import (
	"context"
	"fmt"
	"log"

	"github.com/pollinator/api/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes status events on a Redis pub/sub channel
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher for the given topic
func NewRedisPublisher(redisClient *redis.Client, topic string) *RedisPublisher {
	return &RedisPublisher{redis: redisClient, channel: topic}
}

func (p *RedisPublisher) Publish(ctx context.Context, jobID string, status model.JobStatus) error {
	data, err := encodeEvent(jobID, status)
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish status to %s: %w", p.channel, err)
	}
	return nil
}

// RedisSubscriber receives status events from a Redis pub/sub channel
type RedisSubscriber struct {
	redis   *redis.Client
	channel string
}

// NewRedisSubscriber creates a subscriber for the given topic
func NewRedisSubscriber(redisClient *redis.Client, topic string) *RedisSubscriber {
	return &RedisSubscriber{redis: redisClient, channel: topic}
}

// Subscribe blocks, calling handler for each event, until ctx is cancelled
func (s *RedisSubscriber) Subscribe(ctx context.Context, handler func(model.StatusEvent)) error {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("[Status] dropping message on %s: %v", s.channel, err)
				continue
			}
			handler(ev)
		}
	}
}
