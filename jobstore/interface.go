// Package jobstore provides persistence for narration jobs.
//
// Saves replace the whole job record: callers mutate a loaded snapshot and
// save it back, so readers never observe a partially updated job. Stores
// stamp UpdatedAt on every save.
package jobstore

import (
	"context"
	"errors"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// Store defines the interface for persistent job storage.
type Store interface {
	// LoadJob retrieves a job by ID.
	LoadJob(ctx context.Context, id string) (*types.Job, error)

	// SaveJob persists a job, replacing any existing record wholesale.
	SaveJob(ctx context.Context, job *types.Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, id string) error

	// ListJobs returns all job IDs, most recently updated first.
	ListJobs(ctx context.Context) ([]string, error)
}

// ErrNotFound is returned when a job doesn't exist in the store.
var ErrNotFound = errors.New("job not found")

// ErrInvalidID is returned when an invalid job ID is provided.
var ErrInvalidID = errors.New("invalid job ID")

// ErrInvalidJob is returned when a nil job is provided.
var ErrInvalidJob = errors.New("invalid job")
