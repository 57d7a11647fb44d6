// Command status-listener prints job status events from the configured
// transport until interrupted.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
)

func main() {
	cfg := config.Read()
	if cfg.Status.Topic == "" {
		log.Fatal("JOB_STATUS_TOPIC required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sub publisher.Subscriber
	switch cfg.Status.Transport {
	case config.TransportNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("pollinator-status-listener"))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Close()
		sub = publisher.NewNATSSubscriber(nc, cfg.Status.Topic)
	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		sub = publisher.NewRedisSubscriber(redisClient, cfg.Status.Topic)
	}

	log.Printf("Listening for job status on %s (%s)", cfg.Status.Topic, cfg.Status.Transport)
	err := sub.Subscribe(ctx, func(ev model.StatusEvent) {
		log.Printf("job %s -> %s", ev.JobID, ev.Status)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Subscription failed: %v", err)
	}
}
