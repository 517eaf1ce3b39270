package telemetry

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CadenzaLabs/NarrateKit/engine/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// jobState tracks the anchor span for a job.
type jobState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// The EventBus dispatches each Publish() in a separate goroutine, so completion
// events can race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// TelemetryListener converts engine events into OTel spans in real time.
// It implements the events.Listener function signature via its OnEvent method.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type TelemetryListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	jobs        map[string]*jobState   // jobID → anchor span + ctx
	inflight    map[string]*spanEntry  // "run:<jobID>" → span + ctx
	pendingEnds map[string]*pendingEnd // buffered completions for out-of-order delivery
}

// NewTelemetryListener creates a listener that creates OTel spans from engine events.
func NewTelemetryListener(tracer trace.Tracer) *TelemetryListener {
	return &TelemetryListener{
		tracer:      tracer,
		jobs:        make(map[string]*jobState),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// StartJob creates an anchor span for the given job, optionally parented
// under the span context in parentCtx. Runs and merges of the job become
// children of the anchor; without one each run starts its own trace.
func (l *TelemetryListener) StartJob(parentCtx context.Context, jobID string) {
	ctx, span := l.tracer.Start(parentCtx, "narratekit.job",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	l.mu.Lock()
	l.jobs[jobID] = &jobState{span: span, ctx: ctx}
	l.mu.Unlock()
}

// EndJob ends the anchor span for the given job.
func (l *TelemetryListener) EndJob(jobID string) {
	l.mu.Lock()
	js, ok := l.jobs[jobID]
	if ok {
		delete(l.jobs, jobID)
	}
	l.mu.Unlock()
	if ok {
		js.span.End()
	}
}

// OnEvent handles a single engine event and creates/completes OTel spans accordingly.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
func (l *TelemetryListener) OnEvent(evt *events.Event) {
	switch evt.Type {
	case events.EventJobStarted:
		l.startRun(evt)
	case events.EventJobCompleted:
		l.completeRun(evt)
	case events.EventJobStopped:
		l.stopRun(evt)
	case events.EventUnitQueued:
		l.handleQueued(evt)
	case events.EventUnitStarted:
		l.startSynthesis(evt)
	case events.EventUnitCompleted:
		l.completeSynthesis(evt)
	case events.EventUnitFailed:
		l.failSynthesis(evt)
	case events.EventUnitRetried:
		l.retrySynthesis(evt)
	case events.EventMergeStarted:
		l.startMerge(evt)
	case events.EventMergeCompleted:
		l.completeMerge(evt)
	}
}

func runKey(jobID string) string { return "run:" + jobID }

func mergeKey(jobID string) string { return "merge:" + jobID }

// unitKey identifies one synthesis attempt. Attempts of the same unit run
// serially but their events may be delivered out of order, so each attempt
// gets its own span.
func unitKey(unitID string, attempt int) string {
	return "unit:" + unitID + ":" + strconv.Itoa(attempt)
}

// jobCtx returns the context anchoring spans for the job.
// Falls back to context.Background() if the job has no anchor span.
func (l *TelemetryListener) jobCtx(jobID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if js, ok := l.jobs[jobID]; ok {
		return js.ctx
	}
	return context.Background()
}

// runCtx returns the context of the job's active run span, falling back to
// the job anchor when no run span is open.
func (l *TelemetryListener) runCtx(jobID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.inflight[runKey(jobID)]; ok {
		return entry.ctx
	}
	if js, ok := l.jobs[jobID]; ok {
		return js.ctx
	}
	return context.Background()
}

// startSpan starts a span under parentCtx and stores it in inflight.
// If a completion was already buffered (out-of-order delivery), the span is
// immediately ended.
func (l *TelemetryListener) startSpan(
	parentCtx context.Context, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	ctx, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		span.SetAttributes(pe.attrs...)
		if pe.errMsg != "" {
			span.SetStatus(codes.Error, pe.errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// endSpan ends an inflight span and removes it from the map.
// If the span hasn't started yet (out-of-order delivery), the completion is
// buffered and will be applied when startSpan creates the span.
func (l *TelemetryListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End()
}

// failSpan ends an inflight span with an error status.
// If the span hasn't started yet (out-of-order delivery), the failure is
// buffered and will be applied when startSpan creates the span.
func (l *TelemetryListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Error, errMsg)
	entry.span.End()
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
// The emitter may pass either T or *T depending on the event.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

// --- Runs ---

func (l *TelemetryListener) startRun(evt *events.Event) {
	attrs := []attribute.KeyValue{attribute.String("job.id", evt.JobID)}
	if data, ok := asPtr[events.JobStartedData](evt.Data); ok {
		attrs = append(attrs, attribute.Int("run.unit_count", data.UnitCount))
	}
	l.startSpan(l.jobCtx(evt.JobID), runKey(evt.JobID), "narratekit.run",
		trace.SpanKindInternal, attrs...)
}

func (l *TelemetryListener) completeRun(evt *events.Event) {
	data, ok := asPtr[events.JobCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(runKey(evt.JobID),
		attribute.Int64("run.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("run.completed_units", data.Completed),
		attribute.Int("run.failed_units", data.Failed),
	)
}

func (l *TelemetryListener) stopRun(evt *events.Event) {
	data, ok := asPtr[events.JobStoppedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(runKey(evt.JobID),
		attribute.Bool("run.stopped", true),
		attribute.Int("run.remaining_units", data.Remaining),
	)
}

// --- Units ---

func (l *TelemetryListener) handleQueued(evt *events.Event) {
	data, ok := asPtr[events.UnitEventData](evt.Data)
	if !ok {
		return
	}
	evtAttrs := []attribute.KeyValue{
		attribute.String("unit.id", data.UnitID),
		attribute.Int("unit.index", data.Index),
	}

	// Attach to the active run span if present, otherwise the job anchor.
	l.mu.Lock()
	if entry, ok := l.inflight[runKey(evt.JobID)]; ok {
		entry.span.AddEvent("unit.queued", trace.WithAttributes(evtAttrs...))
	} else if js, ok := l.jobs[evt.JobID]; ok {
		js.span.AddEvent("unit.queued", trace.WithAttributes(evtAttrs...))
	}
	l.mu.Unlock()
}

func (l *TelemetryListener) startSynthesis(evt *events.Event) {
	data, ok := asPtr[events.UnitEventData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(l.runCtx(evt.JobID), unitKey(data.UnitID, data.Attempt),
		"narratekit.synthesis."+data.Provider,
		trace.SpanKindClient,
		attribute.String("tts.provider", data.Provider),
		attribute.String("unit.id", data.UnitID),
		attribute.Int("unit.index", data.Index),
		attribute.Int("synthesis.attempt", data.Attempt),
	)
}

func (l *TelemetryListener) completeSynthesis(evt *events.Event) {
	data, ok := asPtr[events.UnitEventData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(unitKey(data.UnitID, data.Attempt),
		attribute.Int64("synthesis.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("audio.bytes", data.AudioBytes),
	)
}

func (l *TelemetryListener) failSynthesis(evt *events.Event) {
	data, ok := asPtr[events.UnitEventData](evt.Data)
	if !ok {
		return
	}
	l.failSpan(unitKey(data.UnitID, data.Attempt), data.Error.Error(),
		attribute.Int64("synthesis.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *TelemetryListener) retrySynthesis(evt *events.Event) {
	data, ok := asPtr[events.UnitEventData](evt.Data)
	if !ok {
		return
	}
	l.failSpan(unitKey(data.UnitID, data.Attempt), data.Error.Error(),
		attribute.Bool("synthesis.retried", true),
		attribute.Int64("retry.delay_ms", data.RetryDelay.Milliseconds()),
	)
}

// --- Merges ---

func (l *TelemetryListener) startMerge(evt *events.Event) {
	attrs := []attribute.KeyValue{attribute.String("job.id", evt.JobID)}
	if data, ok := asPtr[events.MergeStartedData](evt.Data); ok {
		attrs = append(attrs, attribute.Int("merge.unit_count", data.UnitCount))
	}
	l.startSpan(l.jobCtx(evt.JobID), mergeKey(evt.JobID), "narratekit.merge",
		trace.SpanKindInternal, attrs...)
}

func (l *TelemetryListener) completeMerge(evt *events.Event) {
	data, ok := asPtr[events.MergeCompletedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(mergeKey(evt.JobID),
		attribute.Int64("merge.duration_ms", data.Duration.Milliseconds()),
		attribute.Int("merge.merged_units", data.MergedUnits),
		attribute.Int("merge.skipped_units", data.SkippedUnits),
		attribute.Int("merge.audio_bytes", data.AudioBytes),
	)
}
