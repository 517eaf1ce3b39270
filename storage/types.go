package storage

import (
	"time"
)

// AudioMetadata describes a stored narration container. Backends keep
// it beside the audio so a reference stays self-describing without a
// job record lookup.
type AudioMetadata struct {
	// JobID identifies the narration job the audio belongs to
	JobID string `json:"job_id"`

	// UnitID identifies the narration unit the audio was synthesized
	// for (empty for merged narrations)
	UnitID string `json:"unit_id,omitempty"`

	// MIMEType is the audio container type. The engine only writes
	// "audio/wav".
	MIMEType string `json:"mime_type"`

	// SampleRate is the PCM sample rate declared by the container
	// header, in Hz
	SampleRate int `json:"sample_rate"`

	// SizeBytes is the stored container size in bytes
	SizeBytes int64 `json:"size_bytes"`

	// Checksum is the hex SHA-256 of the container bytes
	Checksum string `json:"checksum,omitempty"`

	// Provider names the synthesis backend that produced the audio
	Provider string `json:"provider,omitempty"`

	// Voice is the voice identifier the audio was synthesized with
	Voice string `json:"voice,omitempty"`

	// StoredAt is when the container was written
	StoredAt time.Time `json:"stored_at"`
}

// AudioReference identifies a stored container. Key is the handle
// callers persist (a unit's result key); the remaining fields are
// bookkeeping filled in by the backend.
type AudioReference struct {
	// Key is the backend-specific storage key
	Key string `json:"key"`

	// SizeBytes is the stored container size in bytes
	SizeBytes int64 `json:"size_bytes"`

	// Checksum is the hex SHA-256 of the container bytes
	Checksum string `json:"checksum,omitempty"`
}
