package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pollinator/api/internal/client"
	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/publisher"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/store"
)

const messageJobAccepted = "Job accepted"

// createJobMessages are reported for the first missing field, in struct order
var createJobMessages = map[string]string{
	"Key":    "Object key is missing",
	"Type":   "Object type is missing",
	"UserID": "User id is missing",
}

// JobService accepts new jobs and answers queries about existing ones
type JobService struct {
	store      store.JobStore
	publisher  publisher.Publisher
	dispatcher queue.Dispatcher
	signer     client.URLSigner
	validator  *validator.Validate

	pageSize  int
	urlExpiry time.Duration
	now       func() time.Time
}

func NewJobService(
	jobStore store.JobStore,
	statusPublisher publisher.Publisher,
	dispatcher queue.Dispatcher,
	signer client.URLSigner,
	v *validator.Validate,
	cfg *config.Config,
) *JobService {
	return &JobService{
		store:      jobStore,
		publisher:  statusPublisher,
		dispatcher: dispatcher,
		signer:     signer,
		validator:  v,
		pageSize:   cfg.Pipeline.PageSize,
		urlExpiry:  cfg.Storage.SignedURLExpiry,
		now:        time.Now,
	}
}

// CreateJob records a new job, announces it and starts text extraction.
// A failure after the record is written leaves it in place; the stuck job
// watcher fails it later.
func (s *JobService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.CreateJobResponse, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	job := &model.Job{
		UserID:  req.UserID,
		JobID:   NewJobID(now),
		Created: now.UnixMilli(),
		Updated: now.UnixMilli(),
		Status:  model.JobStatusCreated,
		Files:   []model.FileRef{{Key: req.Key, Type: req.Type}},
		Outputs: []model.FileRef{},
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.publisher.Publish(ctx, job.JobID, job.Status); err != nil {
		return nil, fmt.Errorf("failed to publish job status: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, queue.StageTextExtraction, job); err != nil {
		return nil, fmt.Errorf("failed to start text extraction: %w", err)
	}

	log.Printf("[Jobs] accepted job %s for user %s", job.JobID, job.UserID)
	return &model.CreateJobResponse{
		Message: messageJobAccepted,
		JobID:   job.JobID,
	}, nil
}

func (s *JobService) validateCreate(req *model.CreateJobRequest) error {
	if req == nil {
		return model.NewValidationError("Key", createJobMessages["Key"])
	}

	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	field := verrs[0].StructField()
	msg, ok := createJobMessages[field]
	if !ok {
		msg = fmt.Sprintf("%s is invalid", verrs[0].Field())
	}
	return model.NewValidationError(field, msg)
}

// ListJobs returns one page of the user's jobs with signed output URLs
func (s *JobService) ListJobs(ctx context.Context, userID, cursor string) (*model.ListJobsResponse, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId", "Missing userId")
	}

	page, err := s.store.QueryByUser(ctx, userID, s.pageSize, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	items := make([]model.JobView, 0, len(page.Jobs))
	for _, job := range page.Jobs {
		view, err := s.project(ctx, job)
		if err != nil {
			return nil, err
		}
		items = append(items, *view)
	}

	return &model.ListJobsResponse{
		Items:      items,
		NextCursor: page.NextCursor,
	}, nil
}

// GetJob returns a single job projection
func (s *JobService) GetJob(ctx context.Context, userID, jobID string) (*model.JobView, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId", "Missing userId")
	}
	if jobID == "" {
		return nil, model.NewValidationError("jobId", "Missing jobId")
	}

	job, err := s.store.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, job)
}

func (s *JobService) project(ctx context.Context, job *model.Job) (*model.JobView, error) {
	view := &model.JobView{
		UserID:  job.UserID,
		JobID:   job.JobID,
		Created: job.Created,
		Status:  job.Status,
		HasText: job.HasText,
		Outputs: make([]model.SignedOutput, 0, len(job.Outputs)),
	}

	for _, out := range job.Outputs {
		url, err := s.signer.GetSignedURL(ctx, out.Key, s.urlExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to sign output of job %s: %w", job.JobID, err)
		}
		view.Outputs = append(view.Outputs, model.SignedOutput{URL: url, Type: out.Type})
	}
	return view, nil
}
