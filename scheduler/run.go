package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/CadenzaLabs/NarrateKit/engine/credentials"
	"github.com/CadenzaLabs/NarrateKit/engine/events"
	"github.com/CadenzaLabs/NarrateKit/engine/jobstore"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/storage"
	"github.com/CadenzaLabs/NarrateKit/engine/synth"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// runner carries one run's fixed parameters: the selection, the
// concurrency cap, and the job's synthesis settings snapshotted at run
// start. Setting changes made mid-run apply from the next run.
type runner struct {
	engine    *Engine
	jobID     string
	run       *runState
	em        *events.Emitter
	base      synth.SynthesisConfig
	limit     int
	selection []types.Unit
	startedAt time.Time
}

// stopped reports whether outcomes may still be committed. A canceled
// context stops the run the same way an explicit stop request does:
// commits cease and in-flight results are discarded.
func (r *runner) stopped(ctx context.Context) bool {
	return r.run.stopped() || ctx.Err() != nil
}

// dispatch hands the selection to workers in display order, at most
// limit in flight. The credential for each unit is taken here so
// rotation follows dispatch order, not worker completion order.
func (r *runner) dispatch(ctx context.Context) {
	sem := semaphore.NewWeighted(int64(r.limit))
	var wg sync.WaitGroup

	for i := range r.selection {
		if r.stopped(ctx) {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if r.stopped(ctx) {
			sem.Release(1)
			break
		}

		cred := r.nextCredential()
		wg.Add(1)
		go func(index int, unit types.Unit) {
			defer wg.Done()
			defer sem.Release(1)
			r.process(ctx, index, unit, cred)
		}(i, r.selection[i])
	}

	wg.Wait()
}

// nextCredential advances the run's rotation cursor. A nil result
// leaves the call on the provider's ambient default.
func (r *runner) nextCredential() credentials.Credential {
	pool := r.engine.credentials
	if len(pool) == 0 {
		return nil
	}
	n := r.run.cursor.Add(1) - 1
	return pool[int(n%int64(len(pool)))]
}

// process runs one unit through the attempt budget. Exactly one
// outcome is committed per unit unless the run is stopped first.
func (r *runner) process(ctx context.Context, index int, unit types.Unit, cred credentials.Credential) {
	ctx = logger.WithUnitID(ctx, unit.ID)
	config := r.base
	config.Credential = cred
	maxAttempts := r.engine.config.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.stopped(ctx) {
			return
		}

		r.em.UnitStarted(unit.ID, index, attempt, r.engine.synthesizer.Name())
		start := time.Now()
		container, err := r.engine.synthesizer.Synthesize(ctx, unit.Text, config)
		elapsed := time.Since(start)

		if err == nil {
			r.commitSuccess(ctx, index, unit.ID, attempt, container, elapsed)
			return
		}
		if attempt == maxAttempts || !synth.Retryable(err) {
			r.commitFailure(ctx, index, unit.ID, attempt, elapsed, err)
			return
		}

		delay := time.Duration(attempt) * r.engine.config.RetryBaseDelay
		r.em.UnitRetried(unit.ID, index, attempt, err, delay)
		logger.DebugContext(ctx, "Synthesis attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// commitSuccess stores the synthesized container and marks the unit
// done. The stop signal is checked again under the record lock, so a
// result can never land after a stop cleared the run.
func (r *runner) commitSuccess(ctx context.Context, index int, unitID string, attempt int, container []byte, elapsed time.Duration) {
	if r.stopped(ctx) {
		logger.DebugContext(ctx, "Discarding synthesis result after stop")
		return
	}

	e := r.engine
	meta := &storage.AudioMetadata{
		UnitID:   unitID,
		Provider: e.synthesizer.Name(),
		Voice:    r.base.Voice,
	}
	ref, err := e.blobs.Store(ctx, r.jobID, bytes.NewReader(container), meta)
	if err != nil {
		r.commitFailure(ctx, index, unitID, attempt, elapsed, fmt.Errorf("failed to store audio: %w", err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if r.stopped(ctx) {
		// The container landed after the stop took effect.
		_ = e.blobs.Delete(ctx, ref.Key)
		return
	}
	job, err := e.store.LoadJob(ctx, r.jobID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load job for commit", "error", err)
		_ = e.blobs.Delete(ctx, ref.Key)
		return
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		// Deleted while in flight.
		_ = e.blobs.Delete(ctx, ref.Key)
		return
	}

	job.Units[i].Status = types.UnitDone
	job.Units[i].ResultKey = ref.Key
	job.Units[i].ErrorMessage = ""
	job.Progress.Current++
	if err := e.store.SaveJob(ctx, job); err != nil {
		logger.WarnContext(ctx, "Failed to save unit outcome", "error", err)
		return
	}

	r.em.UnitCompleted(&events.UnitEventData{
		UnitID:     unitID,
		Index:      index,
		Attempt:    attempt,
		Provider:   e.synthesizer.Name(),
		Duration:   elapsed,
		AudioBytes: len(container),
		Current:    job.Progress.Current,
		Total:      job.Progress.Total,
	})
}

// commitFailure marks the unit failed with the final attempt's error.
func (r *runner) commitFailure(ctx context.Context, index int, unitID string, attempt int, elapsed time.Duration, cause error) {
	if r.stopped(ctx) {
		logger.DebugContext(ctx, "Discarding synthesis failure after stop")
		return
	}

	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.stopped(ctx) {
		return
	}
	job, err := e.store.LoadJob(ctx, r.jobID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load job for commit", "error", err)
		return
	}
	i := job.UnitIndex(unitID)
	if i < 0 {
		return
	}

	job.Units[i].Status = types.UnitFailed
	job.Units[i].ErrorMessage = cause.Error()
	job.Units[i].ResultKey = ""
	job.Progress.Current++
	if err := e.store.SaveJob(ctx, job); err != nil {
		logger.WarnContext(ctx, "Failed to save unit outcome", "error", err)
		return
	}

	logger.WarnContext(ctx, "Unit failed",
		"attempt", attempt,
		"error", cause)
	r.em.UnitFailed(&events.UnitEventData{
		UnitID:   unitID,
		Index:    index,
		Attempt:  attempt,
		Provider: e.synthesizer.Name(),
		Duration: elapsed,
		Error:    cause,
		Current:  job.Progress.Current,
		Total:    job.Progress.Total,
	})
}

// finish closes out the run: selected units left without a committed
// outcome return to the queue, the job is marked idle, and progress
// resets to 0/0. The final state persists even when the run's context
// was canceled.
func (r *runner) finish(ctx context.Context) {
	e := r.engine
	saveCtx := context.WithoutCancel(ctx)
	var remaining, completed, failed int

	e.mu.Lock()
	job, err := e.store.LoadJob(saveCtx, r.jobID)
	if err == nil {
		for _, selected := range r.selection {
			i := job.UnitIndex(selected.ID)
			if i < 0 {
				continue
			}
			switch job.Units[i].Status {
			case types.UnitDone:
				completed++
			case types.UnitFailed:
				failed++
			case types.UnitInFlight:
				job.Units[i].Status = types.UnitQueued
				remaining++
			}
		}
		job.Running = false
		job.Progress = types.Progress{}
		if err := e.store.SaveJob(saveCtx, job); err != nil {
			logger.WarnContext(ctx, "Failed to save final run state", "error", err)
		}
	} else if !errors.Is(err, jobstore.ErrNotFound) {
		logger.WarnContext(ctx, "Failed to load job for final run state", "error", err)
	}
	e.mu.Unlock()

	if r.stopped(ctx) {
		// An explicit stop already published its event and cleared the
		// running flag; only engine-initiated stops report here.
		if !r.run.userStopped.Load() {
			r.em.JobStopped(remaining)
		}
		logger.InfoContext(ctx, "Run stopped",
			"completed", completed,
			"failed", failed,
			"remaining", remaining)
		return
	}

	r.em.JobCompleted(time.Since(r.startedAt), completed, failed)
	logger.InfoContext(ctx, "Run completed",
		"duration", time.Since(r.startedAt),
		"completed", completed,
		"failed", failed)
}
