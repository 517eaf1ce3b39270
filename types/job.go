// Package types defines the shared data model for narration work:
// jobs, their text units, unit lifecycle status, pace levels, and run
// progress. Stores, the scheduler, and the merge assembler all exchange
// these records.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnitStatus represents the lifecycle state of a single text unit.
type UnitStatus string

// Unit lifecycle states. A unit moves Pending/Queued -> InFlight and
// settles as Done or Failed. Failed units can be re-queued manually.
const (
	UnitPending  UnitStatus = "pending"
	UnitQueued   UnitStatus = "queued"
	UnitInFlight UnitStatus = "in_flight"
	UnitDone     UnitStatus = "done"
	UnitFailed   UnitStatus = "failed"
)

// Schedulable returns true for states the scheduler picks up on a run.
func (s UnitStatus) Schedulable() bool {
	return s == UnitPending || s == UnitQueued
}

// Settled returns true once a unit has a committed outcome.
func (s UnitStatus) Settled() bool {
	return s == UnitDone || s == UnitFailed
}

// Pace selects how fast the narration should be read.
type Pace string

// Supported pace levels.
const (
	PaceSlow     Pace = "slow"
	PaceNormal   Pace = "normal"
	PaceFast     Pace = "fast"
	PaceVeryFast Pace = "very_fast"
)

// Valid reports whether p is one of the supported pace levels.
// The empty pace is treated as PaceNormal everywhere.
func (p Pace) Valid() bool {
	switch p {
	case PaceSlow, PaceNormal, PaceFast, PaceVeryFast, "":
		return true
	}
	return false
}

// Gain bounds for per-unit volume. Gain is a linear multiplier applied
// to samples at merge time; 1.0 leaves audio untouched.
const (
	MinGain     = 0.0
	MaxGain     = 2.0
	DefaultGain = 1.0
)

// DefaultConcurrencyLimit caps how many synthesis requests a job keeps
// in flight at once.
const DefaultConcurrencyLimit = 2

// Unit is one chunk of text and its synthesis lifecycle record.
//
// Exactly one of ResultKey/ErrorMessage is set, and only while the unit
// is Done/Failed respectively. ResultKey points into the audio store;
// the referenced container is released when the unit is deleted or the
// job is cleared. Gain is mutable at any time regardless of status.
// Selected is a client-side tag and never influences scheduling.
type Unit struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Status       UnitStatus `json:"status"`
	ResultKey    string     `json:"result_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Gain         float64    `json:"gain"`
	Selected     bool       `json:"selected,omitempty"`
}

// NewUnit creates a pending unit for the given text with a fresh ID
// and unity gain.
func NewUnit(text string) Unit {
	return Unit{
		ID:     uuid.New().String(),
		Text:   text,
		Status: UnitPending,
		Gain:   DefaultGain,
	}
}

// Validate checks the unit's structural invariants.
func (u *Unit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("unit has no id")
	}
	if u.Text == "" {
		return fmt.Errorf("unit %s has empty text", u.ID)
	}
	if u.Gain < MinGain || u.Gain > MaxGain {
		return fmt.Errorf("unit %s gain %.2f outside [%.1f, %.1f]", u.ID, u.Gain, MinGain, MaxGain)
	}
	if u.ResultKey != "" && u.Status != UnitDone {
		return fmt.Errorf("unit %s has a result but status %q", u.ID, u.Status)
	}
	if u.ErrorMessage != "" && u.Status != UnitFailed {
		return fmt.Errorf("unit %s has an error but status %q", u.ID, u.Status)
	}
	return nil
}

// Progress counts committed outcomes for the current scheduling run.
// Total is fixed when the run's selection is taken; Current advances
// only for outcomes that were actually applied.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job is an ordered collection of units sharing one set of narration
// settings. At most one scheduling pass runs per job at a time; Running
// acts as the mutual-exclusion flag.
type Job struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Units            []Unit    `json:"units"`
	Voice            string    `json:"voice,omitempty"`
	StyleText        string    `json:"style_text,omitempty"`
	Pace             Pace      `json:"pace,omitempty"`
	ConcurrencyLimit int       `json:"concurrency_limit"`
	Running          bool      `json:"running"`
	Progress         Progress  `json:"progress"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewJob creates an empty job with a fresh ID and default settings.
func NewJob(name string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:               uuid.New().String(),
		Name:             name,
		ConcurrencyLimit: DefaultConcurrencyLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Validate checks the job and every unit it holds.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job has no id")
	}
	if j.ConcurrencyLimit < 1 {
		return fmt.Errorf("job %s concurrency limit %d < 1", j.ID, j.ConcurrencyLimit)
	}
	if !j.Pace.Valid() {
		return fmt.Errorf("job %s has unknown pace %q", j.ID, j.Pace)
	}
	for i := range j.Units {
		if err := j.Units[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UnitIndex returns the position of the unit with the given ID, or -1.
func (j *Job) UnitIndex(unitID string) int {
	for i := range j.Units {
		if j.Units[i].ID == unitID {
			return i
		}
	}
	return -1
}

// DoneUnits returns the units with stored audio, in display order.
func (j *Job) DoneUnits() []Unit {
	var done []Unit
	for _, u := range j.Units {
		if u.Status == UnitDone {
			done = append(done, u)
		}
	}
	return done
}

// Clone returns a deep copy of the job via JSON round-trip, so callers
// can hand out snapshots without sharing unit slices.
func (j *Job) Clone() (*Job, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to clone job: %w", err)
	}
	var out Job
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to clone job: %w", err)
	}
	return &out, nil
}
