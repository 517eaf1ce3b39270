package local_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/storage"
	"github.com/CadenzaLabs/NarrateKit/engine/storage/local"
)

var _ storage.AudioStorageService = (*local.FileStore)(nil)

// testContainer builds a playable narration container. Different
// frequencies yield different bytes, so tests can control whether
// content collides.
func testContainer(frequency float64) []byte {
	pcm := audio.GenerateSineWave(frequency, 50, audio.DefaultSampleRate)
	return audio.Encode(pcm, audio.DefaultSampleRate)
}

// blobPath maps a storage key back onto the filesystem.
func blobPath(baseDir, key string) string {
	return filepath.Join(baseDir, filepath.FromSlash(key))
}

func TestNewFileStore(t *testing.T) {
	t.Run("creates with valid config", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:             tempDir,
			EnableDeduplication: true,
		})
		require.NoError(t, err)
		require.NotNil(t, fs)

		assert.DirExists(t, tempDir)
	})

	t.Run("fails without base directory", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{})
		assert.Error(t, err)
		assert.Nil(t, fs)
		assert.Contains(t, err.Error(), "base directory is required")
	})
}

func TestFileStore_Store(t *testing.T) {
	ctx := context.Background()

	t.Run("stores audio container", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: tempDir})
		require.NoError(t, err)

		container := testContainer(440)
		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(container), nil)
		require.NoError(t, err)
		require.NotNil(t, ref)

		assert.True(t, strings.HasPrefix(ref.Key, "jobs/job-1/"), "key %q should live under the job", ref.Key)
		assert.True(t, strings.HasSuffix(ref.Key, ".wav"))
		assert.Equal(t, int64(len(container)), ref.SizeBytes)
		assert.Len(t, ref.Checksum, 64)

		stored, err := os.ReadFile(blobPath(tempDir, ref.Key))
		require.NoError(t, err)
		assert.Equal(t, container, stored)
	})

	t.Run("writes metadata sidecar", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: tempDir})
		require.NoError(t, err)

		container := testContainer(440)
		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{
			UnitID:   "unit-1",
			Provider: "gemini",
			Voice:    "Kore",
		})
		require.NoError(t, err)

		raw, err := os.ReadFile(blobPath(tempDir, ref.Key) + ".meta")
		require.NoError(t, err)

		var meta storage.AudioMetadata
		require.NoError(t, json.Unmarshal(raw, &meta))

		assert.Equal(t, "job-1", meta.JobID)
		assert.Equal(t, "unit-1", meta.UnitID)
		assert.Equal(t, "audio/wav", meta.MIMEType)
		assert.Equal(t, audio.DefaultSampleRate, meta.SampleRate)
		assert.Equal(t, int64(len(container)), meta.SizeBytes)
		assert.Equal(t, ref.Checksum, meta.Checksum)
		assert.Equal(t, "gemini", meta.Provider)
		assert.Equal(t, "Kore", meta.Voice)
		assert.False(t, meta.StoredAt.IsZero())
	})

	t.Run("deduplicates identical content", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:             tempDir,
			EnableDeduplication: true,
		})
		require.NoError(t, err)

		container := testContainer(440)

		ref1, err := fs.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-1"})
		require.NoError(t, err)

		ref2, err := fs.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-2"})
		require.NoError(t, err)

		assert.Equal(t, ref1.Key, ref2.Key)

		refs, err := fs.List(ctx, "job-1")
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		_, err = fs.Store(ctx, "job-1", bytes.NewReader(nil), nil)
		assert.ErrorContains(t, err, "audio content is empty")
	})

	t.Run("rejects empty job ID", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		_, err = fs.Store(ctx, "", bytes.NewReader([]byte("data")), nil)
		assert.ErrorContains(t, err, "job ID is required")
	})
}

func TestFileStore_Retrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips stored audio", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		container := testContainer(440)
		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(container), nil)
		require.NoError(t, err)

		rc, err := fs.Retrieve(ctx, ref.Key)
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, container, data)
	})

	t.Run("unknown key returns ErrNotFound", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		_, err = fs.Retrieve(ctx, "jobs/job-1/missing.wav")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("rejects traversal keys", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		for _, key := range []string{
			"../outside.wav",
			"jobs/../../outside.wav",
			"../../etc/passwd",
		} {
			_, err := fs.Retrieve(ctx, key)
			assert.ErrorContains(t, err, "outside the audio root", "key %q", key)
		}
	})
}

func TestFileStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes audio and sidecar", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: tempDir})
		require.NoError(t, err)

		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(testContainer(440)), nil)
		require.NoError(t, err)

		assert.FileExists(t, blobPath(tempDir, ref.Key))
		assert.FileExists(t, blobPath(tempDir, ref.Key)+".meta")

		require.NoError(t, fs.Delete(ctx, ref.Key))

		assert.NoFileExists(t, blobPath(tempDir, ref.Key))
		assert.NoFileExists(t, blobPath(tempDir, ref.Key)+".meta")
	})

	t.Run("removes empty job directory", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: tempDir})
		require.NoError(t, err)

		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(testContainer(440)), nil)
		require.NoError(t, err)

		require.NoError(t, fs.Delete(ctx, ref.Key))

		assert.NoDirExists(t, filepath.Join(tempDir, "jobs", "job-1"))
		assert.DirExists(t, tempDir)
	})

	t.Run("deleting unknown key is a no-op", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		assert.NoError(t, fs.Delete(ctx, "jobs/job-1/missing.wav"))
	})

	t.Run("keeps deduplicated audio until last reference", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:             tempDir,
			EnableDeduplication: true,
		})
		require.NoError(t, err)

		container := testContainer(440)
		ref1, err := fs.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-1"})
		require.NoError(t, err)
		_, err = fs.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-2"})
		require.NoError(t, err)

		require.NoError(t, fs.Delete(ctx, ref1.Key))
		assert.FileExists(t, blobPath(tempDir, ref1.Key), "first delete should only release a reference")

		require.NoError(t, fs.Delete(ctx, ref1.Key))
		assert.NoFileExists(t, blobPath(tempDir, ref1.Key))
	})
}

func TestFileStore_Exists(t *testing.T) {
	ctx := context.Background()

	fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ref, err := fs.Store(ctx, "job-1", bytes.NewReader(testContainer(440)), nil)
	require.NoError(t, err)

	ok, err := fs.Exists(ctx, ref.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists(ctx, "jobs/job-1/missing.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Delete(ctx, ref.Key))

	ok, err = fs.Exists(ctx, ref.Key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_List(t *testing.T) {
	ctx := context.Background()

	t.Run("lists job containers", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		ref1, err := fs.Store(ctx, "job-a", bytes.NewReader(testContainer(440)), nil)
		require.NoError(t, err)
		ref2, err := fs.Store(ctx, "job-a", bytes.NewReader(testContainer(880)), nil)
		require.NoError(t, err)
		_, err = fs.Store(ctx, "job-b", bytes.NewReader(testContainer(220)), nil)
		require.NoError(t, err)

		refs, err := fs.List(ctx, "job-a")
		require.NoError(t, err)
		require.Len(t, refs, 2)

		keys := []string{refs[0].Key, refs[1].Key}
		assert.Contains(t, keys, ref1.Key)
		assert.Contains(t, keys, ref2.Key)
		assert.LessOrEqual(t, refs[0].Key, refs[1].Key, "listing should be sorted by key")

		for _, ref := range refs {
			assert.Positive(t, ref.SizeBytes)
			assert.Len(t, ref.Checksum, 64)
		}
	})

	t.Run("empty for unknown job", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		refs, err := fs.List(ctx, "never-stored")
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("requires job ID", func(t *testing.T) {
		fs, err := local.NewFileStore(local.FileStoreConfig{BaseDir: t.TempDir()})
		require.NoError(t, err)

		_, err = fs.List(ctx, "")
		assert.ErrorContains(t, err, "job ID is required")
	})
}

func TestFileStore_ExclusiveLock(t *testing.T) {
	tempDir := t.TempDir()

	first, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:       tempDir,
		ExclusiveLock: true,
	})
	require.NoError(t, err)

	_, err = local.NewFileStore(local.FileStoreConfig{
		BaseDir:       tempDir,
		ExclusiveLock: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another engine process")

	require.NoError(t, first.Close())

	second, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:       tempDir,
		ExclusiveLock: true,
	})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileStore_WaveformSidecar(t *testing.T) {
	ctx := context.Background()

	t.Run("writes rendered sidecar", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir: tempDir,
			WaveformRenderer: func(container []byte) ([]byte, error) {
				return []byte{0x89, 'P', 'N', 'G'}, nil
			},
		})
		require.NoError(t, err)

		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(testContainer(440)), nil)
		require.NoError(t, err)

		assert.FileExists(t, blobPath(tempDir, ref.Key)+".png")
	})

	t.Run("render failure does not fail the store", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir: tempDir,
			WaveformRenderer: func(container []byte) ([]byte, error) {
				return nil, errors.New("render exploded")
			},
		})
		require.NoError(t, err)

		ref, err := fs.Store(ctx, "job-1", bytes.NewReader(testContainer(440)), nil)
		require.NoError(t, err)

		assert.FileExists(t, blobPath(tempDir, ref.Key))
		assert.NoFileExists(t, blobPath(tempDir, ref.Key)+".png")
	})
}

func TestFileStore_DedupIndexPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	container := testContainer(440)

	first, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:             tempDir,
		EnableDeduplication: true,
	})
	require.NoError(t, err)

	ref, err := first.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-1"})
	require.NoError(t, err)
	_, err = first.Store(ctx, "job-1", bytes.NewReader(container), &storage.AudioMetadata{UnitID: "unit-2"})
	require.NoError(t, err)

	// A fresh store on the same root must see both references.
	second, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:             tempDir,
		EnableDeduplication: true,
	})
	require.NoError(t, err)

	require.NoError(t, second.Delete(ctx, ref.Key))
	assert.FileExists(t, blobPath(tempDir, ref.Key))

	require.NoError(t, second.Delete(ctx, ref.Key))
	assert.NoFileExists(t, blobPath(tempDir, ref.Key))
}
