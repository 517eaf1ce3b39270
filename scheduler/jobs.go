package scheduler

import (
	"context"
	"fmt"

	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// JobParams carries the initial settings for a new job. Every field is
// optional; text can be appended later and settings changed per job.
type JobParams struct {
	// Name labels the job.
	Name string

	// Text is the narration source, chunked into units on creation.
	Text string

	// Voice is the provider voice identifier.
	Voice string

	// StyleText is free-form delivery guidance passed to the provider.
	StyleText string

	// Pace selects the reading speed. Empty means normal.
	Pace types.Pace
}

// CreateJob creates a job and splits its text into pending units.
func (e *Engine) CreateJob(ctx context.Context, params JobParams) (*types.Job, error) {
	if !params.Pace.Valid() {
		return nil, fmt.Errorf("unknown pace %q", params.Pace)
	}

	job := types.NewJob(params.Name)
	job.Voice = params.Voice
	job.StyleText = params.StyleText
	job.Pace = params.Pace
	job.ConcurrencyLimit = e.config.ConcurrencyLimit
	for _, chunk := range e.chunker.Chunk(params.Text) {
		job.Units = append(job.Units, types.NewUnit(chunk))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	logger.InfoContext(logger.WithJobID(ctx, job.ID), "Job created", "units", len(job.Units))
	return job, nil
}

// AppendText chunks more narration text into units appended at the end
// of the job. Units appended while a run is active join the next run;
// the active run's selection is already fixed. Returns the new units.
func (e *Engine) AppendText(ctx context.Context, jobID, text string) ([]types.Unit, error) {
	chunks := e.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	added := make([]types.Unit, 0, len(chunks))
	for _, chunk := range chunks {
		unit := types.NewUnit(chunk)
		job.Units = append(job.Units, unit)
		added = append(added, unit)
	}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return added, nil
}

// UpdateSettings changes the job's narration settings. Runs snapshot
// settings when they start, so changes apply from the next run.
func (e *Engine) UpdateSettings(ctx context.Context, jobID, voice, styleText string, pace types.Pace) error {
	if !pace.Valid() {
		return fmt.Errorf("unknown pace %q", pace)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	job.Voice = voice
	job.StyleText = styleText
	job.Pace = pace
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Job returns the job record.
func (e *Engine) Job(ctx context.Context, jobID string) (*types.Job, error) {
	return e.store.LoadJob(ctx, jobID)
}

// ListJobs returns all job IDs, most recently updated first.
func (e *Engine) ListJobs(ctx context.Context) ([]string, error) {
	return e.store.ListJobs(ctx)
}

// DeleteJob removes the job and releases every container it stored.
// An active run is signaled to stop; its in-flight results are
// discarded when they settle.
func (e *Engine) DeleteJob(ctx context.Context, jobID string) error {
	e.flagStop(jobID)

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	e.releaseUnits(ctx, job.Units)
	if err := e.store.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	logger.InfoContext(logger.WithJobID(ctx, jobID), "Job deleted", "units", len(job.Units))
	return nil
}

// ClearJob removes every unit and releases their stored containers.
// The job itself and its settings survive. An active run is signaled
// to stop.
func (e *Engine) ClearJob(ctx context.Context, jobID string) error {
	e.flagStop(jobID)

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	e.releaseUnits(ctx, job.Units)
	job.Units = nil
	job.Running = false
	job.Progress = types.Progress{}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	logger.InfoContext(logger.WithJobID(ctx, jobID), "Job cleared")
	return nil
}

// Status is a point-in-time view of a job's run state for clients: the
// running flag, run progress, and each unit's lifecycle status.
type Status struct {
	Running  bool           `json:"running"`
	Progress types.Progress `json:"progress"`
	Units    []UnitState    `json:"units"`
}

// UnitState is one unit's entry in a Status snapshot.
type UnitState struct {
	ID           string           `json:"id"`
	Status       types.UnitStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Status reports the job's current run state.
func (e *Engine) Status(ctx context.Context, jobID string) (*Status, error) {
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	status := &Status{
		Running:  job.Running,
		Progress: job.Progress,
		Units:    make([]UnitState, 0, len(job.Units)),
	}
	for _, u := range job.Units {
		status.Units = append(status.Units, UnitState{
			ID:           u.ID,
			Status:       u.Status,
			ErrorMessage: u.ErrorMessage,
		})
	}
	return status, nil
}

// flagStop signals the job's active run, if any, without touching the
// record. Destructive operations use it so orphaned workers stop
// committing.
func (e *Engine) flagStop(jobID string) {
	e.runsMu.Lock()
	if run, active := e.runs[jobID]; active {
		run.stop.Store(true)
	}
	e.runsMu.Unlock()
}

// releaseUnits deletes the stored container behind every unit that has
// one. Failures are logged and skipped.
func (e *Engine) releaseUnits(ctx context.Context, units []types.Unit) {
	for _, u := range units {
		if u.ResultKey == "" {
			continue
		}
		if err := e.blobs.Delete(ctx, u.ResultKey); err != nil {
			logger.WarnContext(ctx, "Failed to release stored audio",
				"key", u.ResultKey,
				"error", err)
		}
	}
}
