// Package scheduler runs narration jobs. A run selects the job's
// schedulable units, fans them out to the synthesis provider under a
// fixed concurrency cap, retries failed calls with linear backoff,
// rotates credentials round-robin across dispatches, and commits every
// settled outcome back to the job store.
//
// At most one run is active per job. A stop request takes effect at
// commit time: outcomes that settle after the stop are discarded and
// the affected units return to the queue. In-flight provider calls are
// never aborted, they are just not committed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CadenzaLabs/NarrateKit/engine/chunker"
	"github.com/CadenzaLabs/NarrateKit/engine/credentials"
	"github.com/CadenzaLabs/NarrateKit/engine/events"
	"github.com/CadenzaLabs/NarrateKit/engine/jobstore"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/storage"
	"github.com/CadenzaLabs/NarrateKit/engine/synth"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// ErrAlreadyRunning is returned by Run when the job already has an
// active scheduling pass.
var ErrAlreadyRunning = errors.New("job is already running")

// ErrEngineShuttingDown is returned by Run once Shutdown has begun.
var ErrEngineShuttingDown = errors.New("scheduler is shutting down")

// ErrUnitNotFound is returned by unit operations when the job holds no
// unit with the given ID.
var ErrUnitNotFound = errors.New("unit not found")

// Engine schedules synthesis work for jobs and owns every mutation of
// their records. All methods are safe for concurrent use.
type Engine struct {
	store       jobstore.Store
	synthesizer synth.Service
	blobs       storage.AudioStorageService
	bus         *events.EventBus
	credentials []credentials.Credential
	chunker     *chunker.Chunker
	config      Config

	// mu serializes every load-modify-save of a job record.
	mu sync.Mutex

	runsMu sync.Mutex
	runs   map[string]*runState

	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// runState is the per-run mutable state: the stop signal and the
// credential rotation cursor. A fresh one is registered for every run,
// so stop signals and rotation never leak across runs or jobs.
type runState struct {
	stop        atomic.Bool
	userStopped atomic.Bool
	cursor      atomic.Int64
}

func (r *runState) stopped() bool { return r.stop.Load() }

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the runtime configuration. Zero fields keep their
// defaults.
func WithConfig(config Config) Option {
	return func(e *Engine) { e.config = config }
}

// WithEventBus attaches a bus the engine publishes lifecycle events to.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithCredentialPool sets the ordered credentials runs rotate through.
// Each dispatched unit takes the next credential round-robin; an empty
// pool leaves every call on the provider's ambient default.
func WithCredentialPool(pool ...credentials.Credential) Option {
	return func(e *Engine) { e.credentials = pool }
}

// WithChunker overrides the chunker used to split new text into units.
func WithChunker(c *chunker.Chunker) Option {
	return func(e *Engine) { e.chunker = c }
}

// NewEngine creates a scheduling engine over the given stores and
// synthesis provider.
func NewEngine(store jobstore.Store, synthesizer synth.Service, blobs storage.AudioStorageService, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesis service is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("audio storage is required")
	}

	e := &Engine{
		store:       store,
		synthesizer: synthesizer,
		blobs:       blobs,
		runs:        make(map[string]*runState),
	}
	for _, opt := range opts {
		opt(e)
	}

	config, err := e.config.withDefaults()
	if err != nil {
		return nil, err
	}
	e.config = config
	if e.chunker == nil {
		e.chunker = chunker.New(chunker.WithMaxLength(config.MaxUnitLength))
	}
	return e, nil
}

// Run executes one scheduling pass for the job and blocks until every
// selected unit has settled or been discarded by a stop. Units added
// to the job after the pass starts wait for the next one.
//
// Returns ErrAlreadyRunning when a pass is already active for this
// job. A run over an empty selection reports progress 0/0 and returns
// immediately.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	e.shutdownMu.RLock()
	if e.isShutdown {
		e.shutdownMu.RUnlock()
		return ErrEngineShuttingDown
	}
	e.shutdownMu.RUnlock()

	run, err := e.registerRun(jobID)
	if err != nil {
		return err
	}
	e.wg.Add(1)
	defer e.wg.Done()
	defer e.unregisterRun(jobID)

	ctx = logger.WithJobID(ctx, jobID)

	selection, job, err := e.beginRun(ctx, jobID)
	if err != nil {
		return err
	}
	if len(selection) == 0 {
		logger.DebugContext(ctx, "No schedulable units")
		return nil
	}

	limit := job.ConcurrencyLimit
	if limit < 1 {
		limit = e.config.ConcurrencyLimit
	}

	em := events.NewEmitter(e.bus, jobID)
	em.JobStarted(len(selection))
	for i := range selection {
		em.UnitQueued(selection[i].ID, i)
	}
	logger.InfoContext(ctx, "Run started",
		"units", len(selection),
		"concurrency", limit,
		"provider", e.synthesizer.Name())

	r := &runner{
		engine: e,
		jobID:  jobID,
		run:    run,
		em:     em,
		base: synth.SynthesisConfig{
			Voice:            job.Voice,
			StyleInstruction: job.StyleText,
			Pace:             job.Pace,
		},
		limit:     limit,
		selection: selection,
		startedAt: time.Now(),
	}
	r.dispatch(ctx)
	r.finish(ctx)
	return nil
}

// registerRun claims the per-job run slot. The in-memory registration
// is the real mutual exclusion; the record's Running flag mirrors it
// for observers.
func (e *Engine) registerRun(jobID string) (*runState, error) {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	if _, active := e.runs[jobID]; active {
		return nil, ErrAlreadyRunning
	}
	run := &runState{}
	e.runs[jobID] = run
	return run, nil
}

func (e *Engine) unregisterRun(jobID string) {
	e.runsMu.Lock()
	delete(e.runs, jobID)
	e.runsMu.Unlock()
}

// beginRun takes the run's selection: every schedulable unit, in
// display order, marked in-flight with its previous error cleared.
// An empty selection leaves the job idle at progress 0/0.
func (e *Engine) beginRun(ctx context.Context, jobID string) ([]types.Unit, *types.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job: %w", err)
	}

	var selection []types.Unit
	for i := range job.Units {
		if job.Units[i].Status.Schedulable() {
			job.Units[i].Status = types.UnitInFlight
			job.Units[i].ErrorMessage = ""
			selection = append(selection, job.Units[i])
		}
	}

	if len(selection) == 0 {
		job.Running = false
		job.Progress = types.Progress{}
	} else {
		job.Running = true
		job.Progress = types.Progress{Current: 0, Total: len(selection)}
	}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("failed to save job: %w", err)
	}
	return selection, job, nil
}

// Stop requests that the job's active run stop. The job is marked not
// running immediately; outcomes still in flight are discarded when
// they settle and their units return to the queue. Stopping a job with
// no active run is a no-op.
func (e *Engine) Stop(ctx context.Context, jobID string) error {
	e.runsMu.Lock()
	run, active := e.runs[jobID]
	e.runsMu.Unlock()
	if !active {
		return nil
	}

	run.userStopped.Store(true)
	run.stop.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()
	job, err := e.store.LoadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	remaining := job.Progress.Total - job.Progress.Current
	job.Running = false
	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	events.NewEmitter(e.bus, jobID).JobStopped(remaining)
	logger.InfoContext(logger.WithJobID(ctx, jobID), "Stop requested", "remaining", remaining)
	return nil
}

// Running reports whether the job has an active scheduling pass.
func (e *Engine) Running(jobID string) bool {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	_, active := e.runs[jobID]
	return active
}

// Shutdown stops accepting new runs, signals every active run to stop,
// and waits for their workers to drain or the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownMu.Lock()
	if e.isShutdown {
		e.shutdownMu.Unlock()
		return nil
	}
	e.isShutdown = true
	e.shutdownMu.Unlock()

	e.runsMu.Lock()
	for _, run := range e.runs {
		run.stop.Store(true)
	}
	e.runsMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Scheduler shut down gracefully")
		return nil
	case <-ctx.Done():
		logger.Warn("Scheduler shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
