// Package prometheus exposes narration engine metrics for Prometheus scraping.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "narratekit"

var (
	// synthesisDuration is a histogram of a unit's final synthesis attempt
	// duration in seconds.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of the deciding synthesis attempt per unit in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// synthesisAttemptsTotal is a counter of synthesis attempts by provider.
	synthesisAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_attempts_total",
			Help:      "Total number of synthesis attempts",
		},
		[]string{"provider"},
	)

	// synthesisRetriesTotal is a counter of attempts that failed and will run again.
	synthesisRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_retries_total",
			Help:      "Total number of synthesis attempts retried after a failure",
		},
	)

	// synthesisAudioBytesTotal is a counter of audio committed by finished units.
	synthesisAudioBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_audio_bytes_total",
			Help:      "Total bytes of audio committed by finished units",
		},
	)

	// unitsTotal is a counter of units reaching a final status.
	unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Total number of units reaching a final status",
		},
		[]string{"status"}, // status: success, error
	)

	// jobsActive is a gauge of currently active narration runs.
	jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of currently active narration runs",
		},
	)

	// jobRunsTotal is a counter of narration runs by outcome.
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Total number of narration runs by outcome",
		},
		[]string{"outcome"}, // outcome: completed, stopped
	)

	// jobDuration is a histogram of completed narration run duration.
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Histogram of completed narration run duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// mergeDuration is a histogram of export merge duration.
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Histogram of export merge duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// mergeUnitsTotal is a counter of units handled by export merges.
	mergeUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_units_total",
			Help:      "Total number of units handled by export merges",
		},
		[]string{"disposition"}, // disposition: merged, skipped
	)

	// mergeAudioBytesTotal is a counter of merged audio produced by exports.
	mergeAudioBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_audio_bytes_total",
			Help:      "Total bytes of merged audio produced by exports",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		synthesisDuration,
		synthesisAttemptsTotal,
		synthesisRetriesTotal,
		synthesisAudioBytesTotal,
		unitsTotal,
		jobsActive,
		jobRunsTotal,
		jobDuration,
		mergeDuration,
		mergeUnitsTotal,
		mergeAudioBytesTotal,
	}
)

// RecordSynthesisAttempt records a synthesis attempt starting.
func RecordSynthesisAttempt(provider string) {
	synthesisAttemptsTotal.WithLabelValues(provider).Inc()
}

// RecordSynthesisRetry records a failed attempt that will be retried.
func RecordSynthesisRetry() {
	synthesisRetriesTotal.Inc()
}

// RecordUnitOutcome records a unit reaching its final status.
func RecordUnitOutcome(provider, status string, durationSeconds float64) {
	synthesisDuration.WithLabelValues(provider, status).Observe(durationSeconds)
	unitsTotal.WithLabelValues(status).Inc()
}

// RecordSynthesisAudio records committed audio volume.
func RecordSynthesisAudio(audioBytes int) {
	if audioBytes > 0 {
		synthesisAudioBytesTotal.Add(float64(audioBytes))
	}
}

// RecordJobStart records a narration run starting.
func RecordJobStart() {
	jobsActive.Inc()
}

// RecordJobEnd records a narration run ending. Stopped runs carry no
// duration and skip the histogram.
func RecordJobEnd(outcome string, durationSeconds float64) {
	jobsActive.Dec()
	jobRunsTotal.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		jobDuration.Observe(durationSeconds)
	}
}

// RecordMerge records an export merge.
func RecordMerge(durationSeconds float64, mergedUnits, skippedUnits, audioBytes int) {
	mergeDuration.Observe(durationSeconds)
	if mergedUnits > 0 {
		mergeUnitsTotal.WithLabelValues("merged").Add(float64(mergedUnits))
	}
	if skippedUnits > 0 {
		mergeUnitsTotal.WithLabelValues("skipped").Add(float64(skippedUnits))
	}
	if audioBytes > 0 {
		mergeAudioBytesTotal.Add(float64(audioBytes))
	}
}
