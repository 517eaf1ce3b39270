package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/CadenzaLabs/NarrateKit/engine/events"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// RetryUnit re-queues a failed unit and starts a new run to pick it
// up. When a run is already active the unit stays queued and joins the
// next run instead.
func (e *Engine) RetryUnit(ctx context.Context, jobID, unitID string) error {
	e.mu.Lock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to load job: %w", err)
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if job.Units[i].Status != types.UnitFailed {
		e.mu.Unlock()
		return fmt.Errorf("unit %s is %s, only failed units can be retried", unitID, job.Units[i].Status)
	}
	job.Units[i].Status = types.UnitQueued
	job.Units[i].ErrorMessage = ""
	if err := e.store.SaveJob(ctx, job); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to save job: %w", err)
	}
	e.mu.Unlock()

	events.NewEmitter(e.bus, jobID).UnitQueued(unitID, i)

	// The caller's request finishes long before the run does; detach
	// from its cancellation but keep its values for logging and traces.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if err := e.Run(runCtx, jobID); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			logger.WarnContext(logger.WithJobID(runCtx, jobID), "Retry run failed", "error", err)
		}
	}()
	return nil
}

// DeleteUnit removes a unit in any state and releases its stored
// container. Deleting a unit an active run has in flight discards that
// unit's pending outcome.
func (e *Engine) DeleteUnit(ctx context.Context, jobID, unitID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if key := job.Units[i].ResultKey; key != "" {
		if err := e.blobs.Delete(ctx, key); err != nil {
			logger.WarnContext(ctx, "Failed to release stored audio",
				"key", key,
				"error", err)
		}
	}
	job.Units = append(job.Units[:i], job.Units[i+1:]...)
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// SetUnitGain sets a unit's volume multiplier. Gain is mutable in any
// state; it only takes effect at merge time.
func (e *Engine) SetUnitGain(ctx context.Context, jobID, unitID string, gain float64) error {
	if gain < types.MinGain || gain > types.MaxGain {
		return fmt.Errorf("gain %.2f outside [%.1f, %.1f]", gain, types.MinGain, types.MaxGain)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	job.Units[i].Gain = gain
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// SetAllGains sets every unit's volume multiplier at once.
func (e *Engine) SetAllGains(ctx context.Context, jobID string, gain float64) error {
	if gain < types.MinGain || gain > types.MaxGain {
		return fmt.Errorf("gain %.2f outside [%.1f, %.1f]", gain, types.MinGain, types.MaxGain)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	for i := range job.Units {
		job.Units[i].Gain = gain
	}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// SetUnitSelected tags or untags a unit. Selection is a client-side
// marker and never influences scheduling.
func (e *Engine) SetUnitSelected(ctx context.Context, jobID, unitID string, selected bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	job.Units[i].Selected = selected
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// UnitContainer returns a done unit's stored audio container and its
// MIME type, for per-unit playback.
func (e *Engine) UnitContainer(ctx context.Context, jobID, unitID string) ([]byte, string, error) {
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load job: %w", err)
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		return nil, "", fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if job.Units[i].Status != types.UnitDone || job.Units[i].ResultKey == "" {
		return nil, "", fmt.Errorf("unit %s has no stored audio", unitID)
	}

	rc, err := e.blobs.Retrieve(ctx, job.Units[i].ResultKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve audio: %w", err)
	}
	defer rc.Close()
	container, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}
	return container, "audio/wav", nil
}
