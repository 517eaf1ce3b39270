package events

import "time"

// EventType identifies the type of event emitted by the engine.
type EventType string

const (
	// EventJobStarted marks the start of a scheduling run.
	EventJobStarted EventType = "job.started"
	// EventJobCompleted marks a scheduling run finishing on its own.
	EventJobCompleted EventType = "job.completed"
	// EventJobStopped marks a scheduling run being stopped on request.
	EventJobStopped EventType = "job.stopped"

	// EventUnitQueued marks a unit entering a run's selection.
	EventUnitQueued EventType = "unit.queued"
	// EventUnitStarted marks a synthesis attempt beginning for a unit.
	EventUnitStarted EventType = "unit.started"
	// EventUnitCompleted marks a unit's audio being committed.
	EventUnitCompleted EventType = "unit.completed"
	// EventUnitFailed marks a unit failing with no attempts left.
	EventUnitFailed EventType = "unit.failed"
	// EventUnitRetried marks a failed attempt that will be retried.
	EventUnitRetried EventType = "unit.retried"

	// EventMergeStarted marks the start of an export merge.
	EventMergeStarted EventType = "merge.started"
	// EventMergeCompleted marks an export merge finishing.
	EventMergeCompleted EventType = "merge.completed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents an engine event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	JobID     string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// JobStartedData contains data for job start events.
type JobStartedData struct {
	baseEventData
	UnitCount int
}

// JobCompletedData contains data for job completion events.
type JobCompletedData struct {
	baseEventData
	Duration  time.Duration
	Completed int
	Failed    int
}

// JobStoppedData contains data for job stop events. Remaining counts the
// selected units that had no committed outcome when the stop took effect.
type JobStoppedData struct {
	baseEventData
	Remaining int
}

// UnitEventData is the unified payload for all unit lifecycle events
// (queued, started, completed, failed, retried). Fields like Duration,
// Error, AudioBytes are zero-valued when not applicable to the phase.
type UnitEventData struct {
	baseEventData
	UnitID     string
	Index      int
	Attempt    int           // 1-based; set on started/completed/failed/retried
	Provider   string        // Set on started/completed/failed
	Duration   time.Duration // Set on completed/failed
	AudioBytes int           // Set on completed
	Error      error         // Set on failed/retried
	RetryDelay time.Duration // Set on retried
	Current    int           // Committed progress after this event; set on completed/failed
	Total      int           // Run selection size; set on completed/failed
}

// MergeStartedData contains data for merge start events.
type MergeStartedData struct {
	baseEventData
	UnitCount int
}

// MergeCompletedData contains data for merge completion events.
type MergeCompletedData struct {
	baseEventData
	Duration     time.Duration
	MergedUnits  int
	SkippedUnits int
	AudioBytes   int
}
