package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pollinator/api/internal/model"
)

// MemoryStore keeps jobs in process memory. It backs tests and single-process development runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]map[string]*model.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]map[string]*model.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userJobs := s.jobs[job.UserID]
	if userJobs == nil {
		userJobs = make(map[string]*model.Job)
		s.jobs[job.UserID] = userJobs
	}
	if _, ok := userJobs[job.JobID]; ok {
		return model.ErrAlreadyExists
	}

	stored := cloneJob(job)
	if stored.Updated == 0 {
		stored.Updated = s.now().UnixMilli()
	}
	userJobs[job.JobID] = stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[userID][jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) Update(ctx context.Context, userID, jobID string, changes Changes) (*model.Job, error) {
	allowed, conditional, err := changes.precondition()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[userID][jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	if conditional && !containsStatus(allowed, job.Status) {
		return nil, model.ErrStatusConflict
	}

	if changes.Status != "" {
		job.Status = changes.Status
	}
	if changes.HasText != nil {
		v := *changes.HasText
		job.HasText = &v
	}
	if changes.Text != nil {
		v := *changes.Text
		job.Text = &v
	}
	if changes.Outputs != nil {
		job.Outputs = append([]model.FileRef{}, changes.Outputs...)
	}
	if changes.Error != nil {
		v := *changes.Error
		job.Error = &v
	}
	job.Updated = s.now().UnixMilli()

	return cloneJob(job), nil
}

func (s *MemoryStore) QueryByUser(ctx context.Context, userID string, limit int, cursor string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs[userID]))
	for id := range s.jobs[userID] {
		if cursor == "" || id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &Page{Jobs: []*model.Job{}}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
		page.NextCursor = ids[len(ids)-1]
	}
	for _, id := range ids {
		page.Jobs = append(page.Jobs, cloneJob(s.jobs[userID][id]))
	}
	return page, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := before.UnixMilli()
	var stale []*model.Job
	for _, userJobs := range s.jobs {
		for _, job := range userJobs {
			if !job.Status.IsTerminal() && job.Updated < cutoff {
				stale = append(stale, cloneJob(job))
			}
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Updated < stale[j].Updated })

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
