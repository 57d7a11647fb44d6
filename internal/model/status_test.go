package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusCreated, JobStatusTextExtracted, true},
		{JobStatusCreated, JobStatusSpeechGenerated, false},
		{JobStatusCreated, JobStatusFailed, true},
		{JobStatusCreated, JobStatusCreated, false},
		{JobStatusTextExtracted, JobStatusSpeechGenerated, true},
		{JobStatusTextExtracted, JobStatusFailed, true},
		{JobStatusTextExtracted, JobStatusCreated, false},
		{JobStatusSpeechGenerated, JobStatusFailed, false},
		{JobStatusSpeechGenerated, JobStatusTextExtracted, false},
		{JobStatusFailed, JobStatusCreated, false},
		{JobStatusFailed, JobStatusFailed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusesLeadingTo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []JobStatus{JobStatusCreated, JobStatusTextExtracted}, StatusesLeadingTo(JobStatusFailed))
	assert.Equal(t, []JobStatus{JobStatusTextExtracted}, StatusesLeadingTo(JobStatusSpeechGenerated))
	assert.Empty(t, StatusesLeadingTo(JobStatusCreated))
}

func TestJobStatusIsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, JobStatusCreated.IsValid())
	assert.False(t, JobStatus("queued").IsValid())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusTextExtracted.IsTerminal())
}
