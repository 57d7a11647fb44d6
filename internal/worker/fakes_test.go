package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pollinator/api/internal/client"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/queue"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	uploads int
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey: " + key)
	}
	return data, nil
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	f.types[key] = contentType
	f.uploads++
	return nil
}

func (f *fakeStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeDetector struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeDetector) DetectText(ctx context.Context, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (*client.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &client.Audio{Data: []byte("mp3:" + text), ContentType: "audio/mpeg"}, nil
}

type dispatched struct {
	stage   queue.Stage
	payload interface{}
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, stage queue.Stage, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, dispatched{stage: stage, payload: payload})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.StatusEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, jobID string, status model.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, model.StatusEvent{JobID: jobID, Status: status})
	return nil
}
