package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/store"
)

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

type fakeSigner struct {
	err error
}

func (f *fakeSigner) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example/" + key + "?expires=" + expiry.String(), nil
}

// brokenStore fails every call as if the backend were down
type brokenStore struct {
	store.JobStore
}

var errBackendDown = errors.New("connection refused")

func (brokenStore) Create(ctx context.Context, job *model.Job) error {
	return errors.Join(model.ErrStoreUnavailable, errBackendDown)
}

func (brokenStore) QueryByUser(ctx context.Context, userID string, limit int, cursor string) (*store.Page, error) {
	return nil, errors.Join(model.ErrStoreUnavailable, errBackendDown)
}
