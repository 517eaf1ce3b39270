// Package project saves narration jobs to a portable archive format and
// restores them. An archive carries the narration settings and unit
// texts but none of the synthesis state; importing always yields a fresh
// job whose units are pending with new IDs. Payloads are validated
// against an embedded JSON Schema before anything is unmarshaled.
package project

import (
	"encoding/json"
	"fmt"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// ArchiveVersion is the format version stamped on exported archives.
const ArchiveVersion = 1

// Archive is the on-disk project format.
type Archive struct {
	Version   int           `json:"version"`
	Name      string        `json:"name,omitempty"`
	Voice     string        `json:"voice,omitempty"`
	StyleText string        `json:"style_text,omitempty"`
	Pace      types.Pace    `json:"pace,omitempty"`
	Units     []ArchiveUnit `json:"units"`
}

// ArchiveUnit is one saved text unit. Gain is a pointer so an omitted
// value can be told apart from an explicit 0.0 (silence) on import.
type ArchiveUnit struct {
	Text     string   `json:"text"`
	Gain     *float64 `json:"gain,omitempty"`
	Selected bool     `json:"selected,omitempty"`
}

// Export serializes a job into archive JSON. Unit audio, status, and
// errors stay behind: result keys point into a local audio store and
// mean nothing to the importing side.
func Export(job *types.Job) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}

	archive := Archive{
		Version:   ArchiveVersion,
		Name:      job.Name,
		Voice:     job.Voice,
		StyleText: job.StyleText,
		Pace:      job.Pace,
		Units:     make([]ArchiveUnit, 0, len(job.Units)),
	}

	for _, unit := range job.Units {
		gain := unit.Gain
		archive.Units = append(archive.Units, ArchiveUnit{
			Text:     unit.Text,
			Gain:     &gain,
			Selected: unit.Selected,
		})
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive: %w", err)
	}
	return data, nil
}

// Import restores a job from archive JSON. The payload is schema-checked
// first; field-level violations are reported in the returned error. The
// resulting job is brand new: fresh job and unit IDs, every unit pending,
// default concurrency.
func Import(data []byte) (*types.Job, error) {
	result, err := ValidateArchive(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("invalid archive: %w", result.AsError())
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("failed to parse archive: %w", err)
	}

	if archive.Version > ArchiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d (newest supported: %d)",
			archive.Version, ArchiveVersion)
	}

	job := types.NewJob(archive.Name)
	job.Voice = archive.Voice
	job.StyleText = archive.StyleText
	job.Pace = archive.Pace

	for _, saved := range archive.Units {
		unit := types.NewUnit(saved.Text)
		if saved.Gain != nil {
			unit.Gain = *saved.Gain
		}
		unit.Selected = saved.Selected
		job.Units = append(job.Units, unit)
	}

	return job, nil
}
