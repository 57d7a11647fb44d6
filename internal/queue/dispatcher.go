// Package queue hands work from one pipeline stage to the next over asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
)

// Stage names a pipeline step
type Stage string

const (
	StageTextExtraction  Stage = "text_extraction"
	StageSpeechSynthesis Stage = "speech_synthesis"
)

// TaskType returns the asynq task type that carries the stage
func (s Stage) TaskType() string {
	return "stage:" + string(s)
}

// Dispatcher starts a stage asynchronously
type Dispatcher interface {
	Dispatch(ctx context.Context, stage Stage, payload interface{}) error
}

// keyed payloads get a stable task ID so a repeated dispatch of the same
// stage for the same job is collapsed by the queue
type keyed interface {
	TaskKey() string
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher enqueues stage tasks on Redis
type AsynqDispatcher struct {
	client    enqueuer
	queues    map[Stage]string
	maxRetry  int
	retention time.Duration
	timeout   time.Duration
}

// NewAsynqDispatcher creates a dispatcher using the configured queue names
func NewAsynqDispatcher(client *asynq.Client, queueCfg *config.QueueConfig, taskTimeout time.Duration) *AsynqDispatcher {
	return newDispatcher(client, queueCfg, taskTimeout)
}

func newDispatcher(client enqueuer, queueCfg *config.QueueConfig, taskTimeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{
		client: client,
		queues: map[Stage]string{
			StageTextExtraction:  queueCfg.TextExtraction,
			StageSpeechSynthesis: queueCfg.SpeechSynthesis,
		},
		maxRetry:  queueCfg.MaxRetry,
		retention: queueCfg.Retention,
		timeout:   taskTimeout,
	}
}

// Dispatch enqueues the stage and returns once Redis has accepted the task
func (d *AsynqDispatcher) Dispatch(ctx context.Context, stage Stage, payload interface{}) error {
	queueName, ok := d.queues[stage]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", model.ErrDispatchFailed, stage)
	}

	task, err := NewTask(stage, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDispatchFailed, err)
	}

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(d.maxRetry),
		asynq.Retention(d.retention),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}
	if k, ok := payload.(keyed); ok {
		opts = append(opts, asynq.TaskID(TaskID(stage, k.TaskKey())))
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf("[Dispatcher] %s task for %s already enqueued", stage, taskKey(payload))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue %s task: %v", model.ErrDispatchFailed, stage, err)
	}

	log.Printf("[Dispatcher] enqueued %s task %s on queue %s", stage, info.ID, info.Queue)
	return nil
}

// NewTask encodes the payload as a stage task
func NewTask(stage Stage, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", stage, err)
	}
	return asynq.NewTask(stage.TaskType(), data), nil
}

// DecodePayload unmarshals a task payload into v
func DecodePayload(t *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", t.Type(), err)
	}
	return nil
}

// TaskID is the queue-wide identity of a stage run for a job
func TaskID(stage Stage, key string) string {
	return string(stage) + ":" + key
}

func taskKey(payload interface{}) string {
	if k, ok := payload.(keyed); ok {
		return k.TaskKey()
	}
	return "job"
}
