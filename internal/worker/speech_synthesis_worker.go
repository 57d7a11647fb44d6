package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/pollinator/api/internal/client"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/store"
)

const speechSynthesisLog = "SpeechSynthesis"

// AudioKey is the storage key of a job's synthesized speech
func AudioKey(userID, jobID string) string {
	return fmt.Sprintf("%s/audio_%s.mp3", userID, jobID)
}

// SpeechSynthesisWorker turns extracted text into stored audio
type SpeechSynthesisWorker struct {
	store       store.JobStore
	storage     client.StorageClient
	synthesizer client.SpeechSynthesizer
	publisher   publisher.Publisher
}

// NewSpeechSynthesisWorker creates a new speech synthesis worker
func NewSpeechSynthesisWorker(jobStore store.JobStore, storage client.StorageClient, synthesizer client.SpeechSynthesizer, statusPublisher publisher.Publisher) *SpeechSynthesisWorker {
	return &SpeechSynthesisWorker{
		store:       jobStore,
		storage:     storage,
		synthesizer: synthesizer,
		publisher:   statusPublisher,
	}
}

// ProcessTask handles speech synthesis task processing
func (w *SpeechSynthesisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.SpeechSynthesisPayload
	if err := queue.DecodePayload(t, &payload); err != nil {
		return permanent(err)
	}

	log.Printf("[%s] starting job %s", speechSynthesisLog, payload.JobID)
	err := w.Process(ctx, &payload)
	if err != nil && !errors.Is(err, model.ErrStatusConflict) && isFinalAttempt(ctx, err) {
		failJob(ctx, w.store, w.publisher, speechSynthesisLog, payload.UserID, payload.JobID, err)
	}
	return err
}

// Process moves a TEXT_EXTRACTED job to SPEECH_GENERATED. The audio key is
// derived from the job, so a repeated delivery overwrites the same object.
func (w *SpeechSynthesisWorker) Process(ctx context.Context, p *model.SpeechSynthesisPayload) error {
	if p.UserID == "" || p.JobID == "" {
		return permanent(errors.New("payload is missing userId or jobId"))
	}

	job, err := w.store.Get(ctx, p.UserID, p.JobID)
	if errors.Is(err, model.ErrJobNotFound) {
		return permanent(err)
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	switch job.Status {
	case model.JobStatusTextExtracted:
	case model.JobStatusCreated:
		return permanent(fmt.Errorf("%w: job %s has no extracted text yet", model.ErrStatusConflict, job.JobID))
	default:
		log.Printf("[%s] job %s is %s, nothing to do", speechSynthesisLog, job.JobID, job.Status)
		return nil
	}

	audio, err := w.synthesizer.Synthesize(ctx, p.Text)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	key := AudioKey(p.UserID, p.JobID)
	if err := w.storage.Upload(ctx, key, bytes.NewReader(audio.Data), audio.ContentType); err != nil {
		return fmt.Errorf("failed to upload audio: %w", err)
	}

	updated, err := w.store.Update(ctx, p.UserID, p.JobID, store.Changes{
		Status:       model.JobStatusSpeechGenerated,
		Outputs:      []model.FileRef{{Key: key, Type: audio.ContentType}},
		ExpectStatus: []model.JobStatus{model.JobStatusTextExtracted},
	})
	if errors.Is(err, model.ErrStatusConflict) {
		current, getErr := w.store.Get(ctx, p.UserID, p.JobID)
		if getErr == nil && current.Status.IsTerminal() {
			log.Printf("[%s] job %s finished concurrently as %s", speechSynthesisLog, job.JobID, current.Status)
			return nil
		}
		return fmt.Errorf("failed to save audio output: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to save audio output: %w", err)
	}

	log.Printf("[%s] job %s completed: %s", speechSynthesisLog, job.JobID, key)
	publishStatus(ctx, w.publisher, speechSynthesisLog, updated.JobID, updated.Status)
	return nil
}
