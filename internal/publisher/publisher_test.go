package publisher_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-memory NATS server for testing purposes.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)

	conn, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		natsServer.Shutdown()
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}
	return natsServer, conn
}

// awaitEvent publishes until the running subscription reports an event
func awaitEvent(t *testing.T, pub publisher.Publisher, events <-chan model.StatusEvent, jobID string, status model.JobStatus) model.StatusEvent {
	t.Helper()

	var got model.StatusEvent
	require.Eventually(t, func() bool {
		assert.NoError(t, pub.Publish(context.Background(), jobID, status))
		select {
		case got = <-events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestRedisPublishSubscribe(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.StatusEvent, 16)
	done := make(chan error, 1)
	go func() {
		done <- publisher.NewRedisSubscriber(rdb, "job-status").Subscribe(ctx, func(ev model.StatusEvent) {
			events <- ev
		})
	}()

	got := awaitEvent(t, publisher.NewRedisPublisher(rdb, "job-status"), events, "j1", model.JobStatusCreated)
	assert.Equal(t, model.StatusEvent{JobID: "j1", Status: model.JobStatusCreated}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestRedisPublishFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	err := publisher.NewRedisPublisher(rdb, "job-status").Publish(context.Background(), "j1", model.JobStatusCreated)
	assert.Error(t, err)
}

func TestNATSPublishSubscribe(t *testing.T) {
	t.Parallel()

	natsServer, conn := startTestServer(t)
	defer natsServer.Shutdown()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.StatusEvent, 16)
	done := make(chan error, 1)
	go func() {
		done <- publisher.NewNATSSubscriber(conn, "jobs.status").Subscribe(ctx, func(ev model.StatusEvent) {
			events <- ev
		})
	}()

	got := awaitEvent(t, publisher.NewNATSPublisher(conn, "jobs.status"), events, "j2", model.JobStatusTextExtracted)
	assert.Equal(t, model.StatusEvent{JobID: "j2", Status: model.JobStatusTextExtracted}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
