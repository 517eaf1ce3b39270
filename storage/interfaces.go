// Package storage defines the audio blob store the engine persists
// synthesized narration into.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a storage key does not resolve to a
// stored container.
var ErrNotFound = errors.New("audio not found")

// AudioStorageService defines the interface for storing and retrieving
// narration audio containers. Implementations may keep audio on the
// local filesystem, in object storage, or any other backend that can
// address blobs by key.
//
// Example usage:
//
//	store, err := local.NewFileStore(local.FileStoreConfig{BaseDir: "/var/narratekit/audio"})
//	if err != nil {
//	    return err
//	}
//	ref, err := store.Store(ctx, jobID, bytes.NewReader(container), meta)
//	// Later...
//	rc, err := store.Retrieve(ctx, ref.Key)
//
// Implementations must be safe for concurrent use by multiple
// goroutines: the scheduler stores containers from parallel synthesis
// workers.
type AudioStorageService interface {
	// Store persists one audio container read from r under the given
	// job and returns a reference whose Key retrieves it later.
	//
	// The metadata travels with the container. Implementations fill in
	// the size, checksum and stored-at fields themselves and may sniff
	// the sample rate from the container header when the caller leaves
	// it zero. A nil meta stores the container with generated metadata
	// only.
	Store(ctx context.Context, jobID string, r io.Reader, meta *AudioMetadata) (*AudioReference, error)

	// Retrieve opens the stored container for the given key. The
	// caller owns the returned ReadCloser. Unknown keys return an
	// error wrapping ErrNotFound.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the stored container for the given key together
	// with any metadata kept beside it. Deleting a key that does not
	// exist is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key resolves to a stored container.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns references for every container stored under the
	// given job, in a deterministic order.
	List(ctx context.Context, jobID string) ([]AudioReference, error)
}
