package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CadenzaLabs/NarrateKit/engine/scheduler"
	"github.com/CadenzaLabs/NarrateKit/engine/synth"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

func TestEngine_RetryUnit(t *testing.T) {
	ctx := context.Background()

	t.Run("requeues a failed unit and reruns", func(t *testing.T) {
		service := &fakeSynth{
			fn: func(attempt int, text string, config synth.SynthesisConfig) ([]byte, error) {
				if attempt == 1 {
					return nil, &synth.SynthesisError{Provider: "fake", Message: "bad luck"}
				}
				return []byte("audio:" + text), nil
			},
		}
		te := newTestEngine(t, service)
		job := seedJob(t, te.store, "Flaky text.")

		require.NoError(t, te.engine.Run(ctx, job.ID))
		got := te.job(t, job.ID)
		require.Equal(t, types.UnitFailed, got.Units[0].Status)
		require.NotEmpty(t, got.Units[0].ErrorMessage)

		require.NoError(t, te.engine.RetryUnit(ctx, job.ID, got.Units[0].ID))

		require.Eventually(t, func() bool {
			current := te.job(t, job.ID)
			return current.Units[0].Status == types.UnitDone && !te.engine.Running(job.ID)
		}, 2*time.Second, 5*time.Millisecond)

		got = te.job(t, job.ID)
		assert.Empty(t, got.Units[0].ErrorMessage)
		assert.NotEmpty(t, got.Units[0].ResultKey)
		assert.Equal(t, 2, service.textAttempts("Flaky text."))
	})

	t.Run("rejects units that did not fail", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Pending text.")
		err := te.engine.RetryUnit(ctx, job.ID, job.Units[0].ID)
		require.ErrorContains(t, err, "only failed units can be retried")
	})

	t.Run("unknown unit", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Some text.")
		err := te.engine.RetryUnit(ctx, job.ID, "missing")
		require.ErrorIs(t, err, scheduler.ErrUnitNotFound)
	})
}

func TestEngine_DeleteUnit(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the unit and its audio", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "One.", "Two.", "Three.")
		require.NoError(t, te.engine.Run(ctx, job.ID))
		require.Equal(t, 3, te.blobs.count())

		target := te.job(t, job.ID).Units[1]
		require.NoError(t, te.engine.DeleteUnit(ctx, job.ID, target.ID))

		got := te.job(t, job.ID)
		require.Len(t, got.Units, 2)
		assert.Equal(t, "One.", got.Units[0].Text)
		assert.Equal(t, "Three.", got.Units[1].Text)
		assert.Equal(t, 2, te.blobs.count())
		assert.Nil(t, te.blobs.get(target.ResultKey))
	})

	t.Run("pending units have no audio to release", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "One.", "Two.")

		require.NoError(t, te.engine.DeleteUnit(ctx, job.ID, job.Units[0].ID))

		got := te.job(t, job.ID)
		require.Len(t, got.Units, 1)
		assert.Equal(t, "Two.", got.Units[0].Text)
	})

	t.Run("unknown unit", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Some text.")
		require.ErrorIs(t, te.engine.DeleteUnit(ctx, job.ID, "missing"), scheduler.ErrUnitNotFound)
	})
}

func TestEngine_SetUnitGain(t *testing.T) {
	ctx := context.Background()

	t.Run("sets gain in any state", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "One.", "Two.")
		require.NoError(t, te.engine.Run(ctx, job.ID))

		done := te.job(t, job.ID).Units[0]
		require.NoError(t, te.engine.SetUnitGain(ctx, job.ID, done.ID, 1.5))

		got := te.job(t, job.ID)
		assert.Equal(t, 1.5, got.Units[0].Gain)
		assert.Equal(t, types.DefaultGain, got.Units[1].Gain)
	})

	t.Run("rejects gain outside bounds", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Some text.")

		require.ErrorContains(t, te.engine.SetUnitGain(ctx, job.ID, job.Units[0].ID, 2.5), "outside")
		require.ErrorContains(t, te.engine.SetUnitGain(ctx, job.ID, job.Units[0].ID, -0.1), "outside")
	})
}

func TestEngine_SetAllGains(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, &fakeSynth{})
	job := seedJob(t, te.store, "One.", "Two.", "Three.")

	require.NoError(t, te.engine.SetAllGains(ctx, job.ID, 0.5))

	got := te.job(t, job.ID)
	for i, unit := range got.Units {
		assert.Equal(t, 0.5, unit.Gain, "unit %d", i)
	}

	require.ErrorContains(t, te.engine.SetAllGains(ctx, job.ID, 3.0), "outside")
}

func TestEngine_SetUnitSelected(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, &fakeSynth{})
	job := seedJob(t, te.store, "Some text.")

	require.NoError(t, te.engine.SetUnitSelected(ctx, job.ID, job.Units[0].ID, true))
	assert.True(t, te.job(t, job.ID).Units[0].Selected)

	require.NoError(t, te.engine.SetUnitSelected(ctx, job.ID, job.Units[0].ID, false))
	assert.False(t, te.job(t, job.ID).Units[0].Selected)
}

func TestEngine_UnitContainer(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored audio with its media type", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Narrated text.")
		require.NoError(t, te.engine.Run(ctx, job.ID))

		unit := te.job(t, job.ID).Units[0]
		container, mimeType, err := te.engine.UnitContainer(ctx, job.ID, unit.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("audio:Narrated text."), container)
		assert.Equal(t, "audio/wav", mimeType)
	})

	t.Run("pending unit has no audio", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Pending text.")

		_, _, err := te.engine.UnitContainer(ctx, job.ID, job.Units[0].ID)
		require.ErrorContains(t, err, "no stored audio")
	})

	t.Run("unknown unit", func(t *testing.T) {
		te := newTestEngine(t, &fakeSynth{})
		job := seedJob(t, te.store, "Some text.")
		_, _, err := te.engine.UnitContainer(ctx, job.ID, "missing")
		require.ErrorIs(t, err, scheduler.ErrUnitNotFound)
	})
}
