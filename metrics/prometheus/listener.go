// Package prometheus exposes narration engine metrics for Prometheus scraping.
package prometheus

import (
	"github.com/CadenzaLabs/NarrateKit/engine/events"
)

// Label values for metric statuses and run outcomes.
const (
	statusSuccess = "success"
	statusError   = "error"

	outcomeCompleted = "completed"
	outcomeStopped   = "stopped"
)

// MetricsListener records engine events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventJobStarted:
		RecordJobStart()
	case events.EventJobCompleted:
		l.handleJobCompleted(event)
	case events.EventJobStopped:
		RecordJobEnd(outcomeStopped, 0)
	case events.EventUnitStarted:
		l.handleUnitStarted(event)
	case events.EventUnitCompleted:
		l.handleUnitCompleted(event)
	case events.EventUnitFailed:
		l.handleUnitFailed(event)
	case events.EventUnitRetried:
		RecordSynthesisRetry()
	case events.EventMergeCompleted:
		l.handleMergeCompleted(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleJobCompleted(event *events.Event) {
	if data, ok := event.Data.(events.JobCompletedData); ok {
		RecordJobEnd(outcomeCompleted, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleUnitStarted(event *events.Event) {
	if data, ok := event.Data.(events.UnitEventData); ok {
		RecordSynthesisAttempt(data.Provider)
	}
}

func (l *MetricsListener) handleUnitCompleted(event *events.Event) {
	if data, ok := event.Data.(events.UnitEventData); ok {
		RecordUnitOutcome(data.Provider, statusSuccess, data.Duration.Seconds())
		RecordSynthesisAudio(data.AudioBytes)
	}
}

func (l *MetricsListener) handleUnitFailed(event *events.Event) {
	if data, ok := event.Data.(events.UnitEventData); ok {
		RecordUnitOutcome(data.Provider, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleMergeCompleted(event *events.Event) {
	if data, ok := event.Data.(events.MergeCompletedData); ok {
		RecordMerge(data.Duration.Seconds(), data.MergedUnits, data.SkippedUnits, data.AudioBytes)
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
