package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
	"github.com/pollinator/api/internal/store"
)

const compensationTimeout = 10 * time.Second

// permanent marks err so asynq archives the task without retrying
func permanent(err error) error {
	return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
}

// isFinalAttempt reports whether asynq will not deliver the task again
func isFinalAttempt(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

// failJob moves a non-terminal job to FAILED and announces it. It runs on a
// fresh deadline because the task context may already be expired.
func failJob(ctx context.Context, jobs store.JobStore, pub publisher.Publisher, prefix, userID, jobID string, cause error) {
	if userID == "" || jobID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	reason := cause.Error()
	_, err := jobs.Update(ctx, userID, jobID, store.Changes{
		Status: model.JobStatusFailed,
		Error:  &reason,
	})
	if errors.Is(err, model.ErrStatusConflict) {
		log.Printf("[%s] job %s already finished, not marking failed", prefix, jobID)
		return
	}
	if err != nil {
		log.Printf("[%s] failed to mark job %s as failed: %v", prefix, jobID, err)
		return
	}

	log.Printf("[%s] job %s failed: %s", prefix, jobID, reason)
	publishStatus(ctx, pub, prefix, jobID, model.JobStatusFailed)
}

func publishStatus(ctx context.Context, pub publisher.Publisher, prefix, jobID string, status model.JobStatus) {
	if err := pub.Publish(ctx, jobID, status); err != nil {
		log.Printf("[%s] failed to publish %s for job %s: %v", prefix, status, jobID, err)
	}
}
