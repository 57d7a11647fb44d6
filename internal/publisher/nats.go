package publisher

import (
	"context"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"github.com/pollinator/api/internal/model"
)

// NATSPublisher publishes status events on a NATS subject
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher creates a publisher for the given subject
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, jobID string, status model.JobStatus) error {
	data, err := encodeEvent(jobID, status)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish status to %s: %w", p.subject, err)
	}
	return nil
}

// NATSSubscriber receives status events from a NATS subject
type NATSSubscriber struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSubscriber creates a subscriber for the given subject
func NewNATSSubscriber(conn *nats.Conn, subject string) *NATSSubscriber {
	return &NATSSubscriber{conn: conn, subject: subject}
}

// Subscribe blocks, calling handler for each event, until ctx is cancelled
func (s *NATSSubscriber) Subscribe(ctx context.Context, handler func(model.StatusEvent)) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			log.Printf("[Status] dropping message on %s: %v", s.subject, err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("failed to confirm subscription to %s: %w", s.subject, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		log.Printf("[Status] failed to drain subscription to %s: %v", s.subject, err)
	}
	return nil
}
