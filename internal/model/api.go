package model

// CreateJobRequest is the body of POST /jobs.
// Field order is the order in which missing fields are reported.
type CreateJobRequest struct {
	Key    string `json:"key" validate:"required"`
	Type   string `json:"type" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// CreateJobResponse acknowledges an accepted job
type CreateJobResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// SignedOutput is an output artifact with a time-limited download URL
type SignedOutput struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// JobView is the projection returned by the query endpoints
type JobView struct {
	UserID  string         `json:"userId"`
	JobID   string         `json:"jobId"`
	Created int64          `json:"created"`
	Status  JobStatus      `json:"status"`
	HasText *bool          `json:"hasText,omitempty"`
	Outputs []SignedOutput `json:"outputs"`
}

// ListJobsResponse is one page of a user's jobs
type ListJobsResponse struct {
	Items      []JobView `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}
