package events

import "time"

// Emitter provides helpers for publishing the lifecycle events of a
// single job. A nil Emitter or one without a bus discards everything, so
// callers never need to guard their emit sites.
type Emitter struct {
	bus   *EventBus
	jobID string
}

// NewEmitter creates an emitter bound to the given job.
func NewEmitter(bus *EventBus, jobID string) *Emitter {
	return &Emitter{bus: bus, jobID: jobID}
}

// emit publishes an event stamped with the job ID.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		JobID:     e.jobID,
		Data:      data,
	}

	e.bus.Publish(event)
}

// JobStarted emits the job.started event.
func (e *Emitter) JobStarted(unitCount int) {
	e.emit(EventJobStarted, JobStartedData{UnitCount: unitCount})
}

// JobCompleted emits the job.completed event.
func (e *Emitter) JobCompleted(duration time.Duration, completed, failed int) {
	e.emit(EventJobCompleted, JobCompletedData{
		Duration:  duration,
		Completed: completed,
		Failed:    failed,
	})
}

// JobStopped emits the job.stopped event.
func (e *Emitter) JobStopped(remaining int) {
	e.emit(EventJobStopped, JobStoppedData{Remaining: remaining})
}

// UnitQueued emits the unit.queued event.
func (e *Emitter) UnitQueued(unitID string, index int) {
	e.emit(EventUnitQueued, UnitEventData{UnitID: unitID, Index: index})
}

// UnitStarted emits the unit.started event.
func (e *Emitter) UnitStarted(unitID string, index, attempt int, provider string) {
	e.emit(EventUnitStarted, UnitEventData{
		UnitID:   unitID,
		Index:    index,
		Attempt:  attempt,
		Provider: provider,
	})
}

// UnitCompleted emits the unit.completed event.
func (e *Emitter) UnitCompleted(data *UnitEventData) {
	if data == nil {
		return
	}
	e.emit(EventUnitCompleted, *data)
}

// UnitFailed emits the unit.failed event.
func (e *Emitter) UnitFailed(data *UnitEventData) {
	if data == nil {
		return
	}
	e.emit(EventUnitFailed, *data)
}

// UnitRetried emits the unit.retried event.
func (e *Emitter) UnitRetried(unitID string, index, attempt int, err error, retryDelay time.Duration) {
	e.emit(EventUnitRetried, UnitEventData{
		UnitID:     unitID,
		Index:      index,
		Attempt:    attempt,
		Error:      err,
		RetryDelay: retryDelay,
	})
}

// MergeStarted emits the merge.started event.
func (e *Emitter) MergeStarted(unitCount int) {
	e.emit(EventMergeStarted, MergeStartedData{UnitCount: unitCount})
}

// MergeCompleted emits the merge.completed event.
func (e *Emitter) MergeCompleted(duration time.Duration, merged, skipped, audioBytes int) {
	e.emit(EventMergeCompleted, MergeCompletedData{
		Duration:     duration,
		MergedUnits:  merged,
		SkippedUnits: skipped,
		AudioBytes:   audioBytes,
	})
}
