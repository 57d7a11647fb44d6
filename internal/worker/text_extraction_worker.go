package worker

import (
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

const textExtractionLog = "TextExtraction"

// TextExtractionWorker runs OCR on a job's image and starts speech synthesis
type TextExtractionWorker struct {
	store      store.JobStore
	storage    client.StorageClient
	detector   client.TextDetector
	dispatcher queue.Dispatcher
	publisher  publisher.Publisher
}

// NewTextExtractionWorker creates a new text extraction worker
func NewTextExtractionWorker(jobStore store.JobStore, storage client.StorageClient, detector client.TextDetector, dispatcher queue.Dispatcher, statusPublisher publisher.Publisher) *TextExtractionWorker {
	return &TextExtractionWorker{
		store:      jobStore,
		storage:    storage,
		detector:   detector,
		dispatcher: dispatcher,
		publisher:  statusPublisher,
	}
}

// ProcessTask handles text extraction task processing
func (w *TextExtractionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.TextExtractionPayload
	if err := queue.DecodePayload(t, &payload); err != nil {
		return permanent(err)
	}

	log.Printf("[%s] starting job %s", textExtractionLog, payload.JobID)
	err := w.Process(ctx, &payload)
	if err != nil && isFinalAttempt(ctx, err) {
		failJob(ctx, w.store, w.publisher, textExtractionLog, payload.UserID, payload.JobID, err)
	}
	return err
}

// Process moves a CREATED job to TEXT_EXTRACTED. Repeated deliveries are
// safe: a job that already has its text only gets speech synthesis
// dispatched again, and a finished job is left alone.
func (w *TextExtractionWorker) Process(ctx context.Context, p *model.TextExtractionPayload) error {
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
	case model.JobStatusCreated:
	case model.JobStatusTextExtracted:
		log.Printf("[%s] job %s already has text, dispatching speech synthesis", textExtractionLog, job.JobID)
		return w.dispatchSpeech(ctx, job)
	default:
		log.Printf("[%s] job %s is %s, nothing to do", textExtractionLog, job.JobID, job.Status)
		return nil
	}

	files := p.Files
	if len(files) == 0 {
		files = job.Files
	}
	if len(files) == 0 {
		return permanent(errors.New("job has no input files"))
	}
	if len(files) > 1 {
		log.Printf("[%s] job %s has %d files, only the first is read", textExtractionLog, job.JobID, len(files))
	}

	image, err := w.storage.Download(ctx, files[0].Key)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}

	text, err := w.detector.DetectText(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to detect text: %w", err)
	}

	hasText := text != ""
	changes := store.Changes{
		Status:       model.JobStatusTextExtracted,
		HasText:      &hasText,
		ExpectStatus: []model.JobStatus{model.JobStatusCreated},
	}
	if hasText {
		changes.Text = &text
	}

	updated, err := w.store.Update(ctx, p.UserID, p.JobID, changes)
	if errors.Is(err, model.ErrStatusConflict) {
		// another delivery got there first
		log.Printf("[%s] job %s changed concurrently, re-reading", textExtractionLog, job.JobID)
		return w.Process(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("failed to save extracted text: %w", err)
	}

	log.Printf("[%s] job %s extracted %d characters", textExtractionLog, job.JobID, len(text))
	publishStatus(ctx, w.publisher, textExtractionLog, updated.JobID, updated.Status)
	return w.dispatchSpeech(ctx, updated)
}

func (w *TextExtractionWorker) dispatchSpeech(ctx context.Context, job *model.Job) error {
	payload := &model.SpeechSynthesisPayload{
		UserID: job.UserID,
		JobID:  job.JobID,
	}
	if job.Text != nil {
		payload.Text = *job.Text
	}

	if err := w.dispatcher.Dispatch(ctx, queue.StageSpeechSynthesis, payload); err != nil {
		return fmt.Errorf("failed to dispatch speech synthesis: %w", err)
	}
	return nil
}
