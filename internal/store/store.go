// Package store persists job records and enforces the status state machine.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pollinator/api/internal/model"
)

// JobStore is the durable home of every job record
type JobStore interface {
	// Create inserts a new record, failing with model.ErrAlreadyExists on a duplicate key.
	Create(ctx context.Context, job *model.Job) error
	// Get returns model.ErrJobNotFound when no record exists.
	Get(ctx context.Context, userID, jobID string) (*model.Job, error)
	// Update merges the supplied fields atomically and returns the record as written.
	Update(ctx context.Context, userID, jobID string, changes Changes) (*model.Job, error)
	// QueryByUser returns a page of the user's jobs in ascending jobId order.
	QueryByUser(ctx context.Context, userID string, limit int, cursor string) (*Page, error)
	// ListStale returns non-terminal jobs last written before the given time.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error)
}

// Changes is a partial update. Zero values are left untouched.
type Changes struct {
	Status  model.JobStatus
	HasText *bool
	Text    *string
	Outputs []model.FileRef
	Error   *string

	// ExpectStatus makes the update conditional on the current status
	ExpectStatus []model.JobStatus
}

// Page is one slice of a user's jobs
type Page struct {
	Jobs       []*model.Job
	NextCursor string
}

// precondition returns the statuses the record must currently be in for the
// change to apply. ok is false when the update is unconditional.
func (c Changes) precondition() (allowed []model.JobStatus, ok bool, err error) {
	if c.Status != "" {
		if !c.Status.IsValid() {
			return nil, false, fmt.Errorf("invalid status %q", c.Status)
		}
		allowed = model.StatusesLeadingTo(c.Status)
		ok = true
	}
	if len(c.ExpectStatus) == 0 {
		return allowed, ok, nil
	}
	if !ok {
		return c.ExpectStatus, true, nil
	}

	var both []model.JobStatus
	for _, s := range allowed {
		for _, e := range c.ExpectStatus {
			if s == e {
				both = append(both, s)
			}
		}
	}
	return both, true, nil
}

func containsStatus(list []model.JobStatus, s model.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneJob(job *model.Job) *model.Job {
	out := *job
	out.Files = append([]model.FileRef(nil), job.Files...)
	out.Outputs = append([]model.FileRef{}, job.Outputs...)
	if job.HasText != nil {
		v := *job.HasText
		out.HasText = &v
	}
	if job.Text != nil {
		v := *job.Text
		out.Text = &v
	}
	if job.Error != nil {
		v := *job.Error
		out.Error = &v
	}
	return &out
}
