// Package publisher broadcasts job status changes to whoever is listening.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pollinator/api/internal/model"
)

// Publisher broadcasts a job status change. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, jobID string, status model.JobStatus) error
}

// Subscriber delivers status events to handler until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(model.StatusEvent)) error
}

func encodeEvent(jobID string, status model.JobStatus) ([]byte, error) {
	data, err := json.Marshal(model.StatusEvent{JobID: jobID, Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (model.StatusEvent, error) {
	var ev model.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal status event: %w", err)
	}
	return ev, nil
}
