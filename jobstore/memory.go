package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. For distributed setups, use RedisStore.
//
// Stored snapshots are immutable: SaveJob replaces the record wholesale
// and LoadJob hands out deep copies, so no caller can mutate another's
// view of a job.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*types.Job),
	}
}

// LoadJob retrieves a job by ID. Returns a deep copy to prevent external
// mutations.
func (s *MemoryStore) LoadJob(ctx context.Context, id string) (*types.Job, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	job, exists := s.jobs[id]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	return job.Clone()
}

// SaveJob persists a job. If it already exists, the record is replaced.
func (s *MemoryStore) SaveJob(ctx context.Context, job *types.Job) error {
	if job == nil {
		return ErrInvalidJob
	}
	if job.ID == "" {
		return ErrInvalidID
	}

	snapshot, err := job.Clone()
	if err != nil {
		return err
	}
	snapshot.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = snapshot
	return nil
}

// DeleteJob removes a job by ID.
func (s *MemoryStore) DeleteJob(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// ListJobs returns all job IDs, most recently updated first. Ties fall
// back to ID order so the listing stays deterministic.
func (s *MemoryStore) ListJobs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids, nil
}
