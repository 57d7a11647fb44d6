package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
	"github.com/pollinator/api/internal/store"
)

const stuckBatchSize = 100

// StuckJobWatcher fails jobs that stopped making progress, such as a job
// whose first dispatch never reached the queue.
type StuckJobWatcher struct {
	store     store.JobStore
	publisher publisher.Publisher
	after     time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewStuckJobWatcher(jobStore store.JobStore, statusPublisher publisher.Publisher, cfg *config.PipelineConfig) *StuckJobWatcher {
	return &StuckJobWatcher{
		store:     jobStore,
		publisher: statusPublisher,
		after:     cfg.StuckAfter,
		interval:  cfg.StuckCheckInterval,
		now:       time.Now,
	}
}

// Sweep marks every stale job FAILED and returns how many it changed.
// Errors on individual jobs are logged and skipped.
func (w *StuckJobWatcher) Sweep(ctx context.Context) (int, error) {
	stale, err := w.store.ListStale(ctx, w.now().Add(-w.after), stuckBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	failed := 0
	for _, job := range stale {
		reason := fmt.Sprintf("job stalled in status %s", job.Status)
		_, err := w.store.Update(ctx, job.UserID, job.JobID, store.Changes{
			Status:       model.JobStatusFailed,
			Error:        &reason,
			ExpectStatus: []model.JobStatus{job.Status},
		})
		if errors.Is(err, model.ErrStatusConflict) {
			// progressed since it was listed
			continue
		}
		if err != nil {
			log.Printf("[StuckJobs] failed to fail job %s: %v", job.JobID, err)
			continue
		}

		failed++
		log.Printf("[StuckJobs] marked job %s as failed: %s", job.JobID, reason)
		if err := w.publisher.Publish(ctx, job.JobID, model.JobStatusFailed); err != nil {
			log.Printf("[StuckJobs] failed to publish status for job %s: %v", job.JobID, err)
		}
	}
	return failed, nil
}

// Run sweeps on every interval until ctx is cancelled
func (w *StuckJobWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				log.Printf("[StuckJobs] %v", err)
			}
		}
	}
}
