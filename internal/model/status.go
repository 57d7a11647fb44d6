package model

// JobStatus is the pipeline position of a job
type JobStatus string

const (
	JobStatusCreated         JobStatus = "CREATED"
	JobStatusTextExtracted   JobStatus = "TEXT_EXTRACTED"
	JobStatusSpeechGenerated JobStatus = "SPEECH_GENERATED"
	JobStatusFailed          JobStatus = "FAILED"
)

var ValidJobStatuses = []JobStatus{
	JobStatusCreated, JobStatusTextExtracted, JobStatusSpeechGenerated, JobStatusFailed,
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	for _, v := range ValidJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSpeechGenerated || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a forward step.
// FAILED is reachable from every non-terminal status.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case JobStatusTextExtracted:
		return s == JobStatusCreated
	case JobStatusSpeechGenerated:
		return s == JobStatusTextExtracted
	case JobStatusFailed:
		return true
	}
	return false
}

// StatusesLeadingTo returns every status that may legally move to next
func StatusesLeadingTo(next JobStatus) []JobStatus {
	var out []JobStatus
	for _, s := range ValidJobStatuses {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}
