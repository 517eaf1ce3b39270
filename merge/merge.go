// Package merge assembles a job's narrated units into one audio
// container.
//
// Done units are concatenated at the sample level in display order,
// each unit's gain applied on the way through, and the result is
// re-encoded at the source rate. Units whose stored audio cannot be
// fetched are skipped rather than failing the whole export.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/events"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/storage"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// ErrNothingToExport is returned when no unit has finished audio.
var ErrNothingToExport = errors.New("no finished audio to export")

// ErrNoValidAudio is returned when none of the stored containers could
// be read or held samples.
var ErrNoValidAudio = errors.New("no valid audio among finished units")

// Assembler merges stored unit audio into a single container.
type Assembler struct {
	blobs storage.AudioStorageService
	bus   *events.EventBus
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithEventBus attaches the bus merge lifecycle events publish to.
func WithEventBus(bus *events.EventBus) Option {
	return func(a *Assembler) { a.bus = bus }
}

// NewAssembler creates an assembler reading containers from blobs.
func NewAssembler(blobs storage.AudioStorageService, opts ...Option) (*Assembler, error) {
	if blobs == nil {
		return nil, fmt.Errorf("audio storage is required")
	}
	a := &Assembler{blobs: blobs}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Merge concatenates the done units' audio in slice order and returns
// one container. A sampleRate of 0 takes the rate declared by the
// first readable container.
//
// Returns ErrNothingToExport when no unit is done and ErrNoValidAudio
// when every done unit's container was unreadable or truncated.
func (a *Assembler) Merge(ctx context.Context, jobID string, units []types.Unit, sampleRate int) ([]byte, error) {
	var done []types.Unit
	for _, u := range units {
		if u.Status == types.UnitDone && u.ResultKey != "" {
			done = append(done, u)
		}
	}
	if len(done) == 0 {
		return nil, ErrNothingToExport
	}

	ctx = logger.WithJobID(ctx, jobID)
	em := events.NewEmitter(a.bus, jobID)
	em.MergeStarted(len(done))
	start := time.Now()

	var samples []byte
	merged, skipped := 0, 0
	for _, u := range done {
		container, err := a.fetch(ctx, u.ResultKey)
		if err != nil {
			logger.WarnContext(ctx, "Skipping unit with unreadable audio",
				"unit_id", u.ID,
				"key", u.ResultKey,
				"error", err)
			skipped++
			continue
		}
		if len(container) < audio.HeaderSize {
			logger.WarnContext(ctx, "Skipping unit with truncated container",
				"unit_id", u.ID,
				"key", u.ResultKey,
				"size", len(container))
			skipped++
			continue
		}

		if sampleRate == 0 {
			sampleRate = audio.SampleRate(container)
		}
		raw := audio.Decode(container)
		if !audio.UnityGain(u.Gain) {
			raw = audio.ApplyGain(raw, u.Gain)
		}
		samples = append(samples, raw...)
		merged++
	}
	if merged == 0 {
		return nil, ErrNoValidAudio
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	out := audio.Encode(samples, sampleRate)
	em.MergeCompleted(time.Since(start), merged, skipped, len(out))
	logger.InfoContext(ctx, "Merge completed",
		"merged", merged,
		"skipped", skipped,
		"sample_rate", sampleRate,
		"bytes", len(out))
	return out, nil
}

func (a *Assembler) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.blobs.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
