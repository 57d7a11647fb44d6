package model

// FileRef points at an object in storage together with its content type
type FileRef struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

// Job is the durable record of one image-to-speech request
type Job struct {
	UserID  string    `json:"userId"`
	JobID   string    `json:"jobId"`
	Created int64     `json:"created"`
	Updated int64     `json:"updated,omitempty"`
	Status  JobStatus `json:"status"`
	Files   []FileRef `json:"files"`
	HasText *bool     `json:"hasText,omitempty"`
	Text    *string   `json:"text,omitempty"`
	Outputs []FileRef `json:"outputs"`
	Error   *string   `json:"error,omitempty"`
}

// TaskKey identifies the job across stage deliveries
func (j *Job) TaskKey() string {
	return j.UserID + ":" + j.JobID
}

// TextExtractionPayload is the task payload of the text extraction stage.
// Submission dispatches the whole Job; the extra fields are ignored on decode.
type TextExtractionPayload struct {
	UserID string    `json:"userId"`
	JobID  string    `json:"jobId"`
	Files  []FileRef `json:"files"`
}

// TaskKey identifies the job across stage deliveries
func (p *TextExtractionPayload) TaskKey() string {
	return p.UserID + ":" + p.JobID
}

// SpeechSynthesisPayload is the task payload of the speech synthesis stage
type SpeechSynthesisPayload struct {
	UserID string `json:"userId"`
	JobID  string `json:"jobId"`
	Text   string `json:"text"`
}

// TaskKey identifies the job across stage deliveries
func (p *SpeechSynthesisPayload) TaskKey() string {
	return p.UserID + ":" + p.JobID
}

// StatusEvent is broadcast after every status change
type StatusEvent struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
