package worker

import (
	"context"
	"testing"

	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusRank(s model.JobStatus) int {
	switch s {
	case model.JobStatusCreated:
		return 0
	case model.JobStatusTextExtracted:
		return 1
	default:
		return 2
	}
}

// TestPipelineEndToEnd drives a job through both stages by replaying the
// dispatched tasks into the workers, as the queue would.
func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	jobs := store.NewMemoryStore()
	storage := newFakeStorage()
	storage.objects["u1/stop.png"] = []byte("png")
	dispatcher := &fakeDispatcher{}
	pub := &fakePublisher{}

	text := NewTextExtractionWorker(jobs, storage, &fakeDetector{text: "STOP"}, dispatcher, pub)
	speech := NewSpeechSynthesisWorker(jobs, storage, &fakeSynthesizer{}, pub)

	job := &model.Job{
		UserID:  "u1",
		JobID:   "1700000000000.ab",
		Created: 1700000000000,
		Status:  model.JobStatusCreated,
		Files:   []model.FileRef{{Key: "u1/stop.png", Type: "image/png"}},
		Outputs: []model.FileRef{},
	}
	require.NoError(t, jobs.Create(ctx, job))

	var seen []model.JobStatus
	observe := func() {
		got, err := jobs.Get(ctx, "u1", job.JobID)
		require.NoError(t, err)
		seen = append(seen, got.Status)
	}
	observe()

	textTask, err := queue.NewTask(queue.StageTextExtraction, job)
	require.NoError(t, err)
	require.NoError(t, text.ProcessTask(ctx, textTask))
	observe()

	// duplicate delivery of the first stage
	require.NoError(t, text.ProcessTask(ctx, textTask))
	observe()

	require.NotEmpty(t, dispatcher.calls)
	for _, call := range dispatcher.calls {
		require.Equal(t, queue.StageSpeechSynthesis, call.stage)
		speechTask, err := queue.NewTask(call.stage, call.payload)
		require.NoError(t, err)
		require.NoError(t, speech.ProcessTask(ctx, speechTask))
		observe()
	}

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, statusRank(seen[i]), statusRank(seen[i-1]), "status went backwards: %v", seen)
	}

	final, err := jobs.Get(ctx, "u1", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSpeechGenerated, final.Status)
	assert.Equal(t, "STOP", *final.Text)
	assert.Equal(t, []model.FileRef{{Key: "u1/audio_1700000000000.ab.mp3", Type: "audio/mpeg"}}, final.Outputs)

	assert.Equal(t, []model.StatusEvent{
		{JobID: job.JobID, Status: model.JobStatusTextExtracted},
		{JobID: job.JobID, Status: model.JobStatusSpeechGenerated},
	}, pub.events)
}
