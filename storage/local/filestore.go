// Package local provides local filesystem-based audio storage.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/storage"
)

const (
	containerMIMEType = "audio/wav"
	containerExt      = ".wav"
	metaExt           = ".meta"
	waveformExt       = ".png"
	tmpExt            = ".tmp"

	jobsDirName    = "jobs"
	dedupIndexName = ".dedup_index.json"

	dirPerm  = 0o750
	filePerm = 0o600
)

// FileStoreConfig configures the local filesystem storage backend.
type FileStoreConfig struct {
	// BaseDir is the root directory for audio storage
	BaseDir string

	// EnableDeduplication enables content-based deduplication using
	// SHA-256 hashing. Identical containers stored twice under one job
	// share a single file; deletes release the file when the last
	// reference goes.
	EnableDeduplication bool

	// ExclusiveLock takes a filesystem lock on BaseDir so a second
	// engine process cannot write the same audio root. Close releases
	// it.
	ExclusiveLock bool

	// WaveformRenderer, when set, is called with each stored container
	// to render a waveform image written beside the audio as a .png
	// sidecar. Render failures are logged, never fatal.
	WaveformRenderer func(container []byte) ([]byte, error)
}

// FileStore implements AudioStorageService using local filesystem
// storage. Containers live under jobs/<job>/<name>.wav with a .meta
// JSON sidecar each. Keys are BaseDir-relative slash paths, so job
// records stay valid when the audio root moves.
type FileStore struct {
	config FileStoreConfig
	locker *Locker

	// dedupIndex maps per-job content hashes to reference-counted keys
	dedupIndex map[string]*dedupEntry
	dedupMu    sync.Mutex
}

// dedupEntry is one persisted deduplication record. Refs survives
// restarts so a shared container is only released with its last unit.
type dedupEntry struct {
	Key  string `json:"key"`
	Refs int    `json:"refs"`
}

// NewFileStore creates a new local filesystem storage backend.
func NewFileStore(config FileStoreConfig) (*FileStore, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BaseDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	fs := &FileStore{
		config:     config,
		dedupIndex: make(map[string]*dedupEntry),
	}

	if config.ExclusiveLock {
		locker := NewLocker(config.BaseDir)
		if err := locker.Lock(); err != nil {
			return nil, err
		}
		fs.locker = locker
	}

	// Load existing deduplication index if enabled
	if config.EnableDeduplication {
		if err := fs.loadDedupIndex(); err != nil {
			// Log but don't fail, the index rebuilds as content is stored
			logger.Warn("Failed to load deduplication index", "error", err)
		}
	}

	return fs, nil
}

// Close releases the exclusive root lock when one was taken. The store
// must not be used afterwards.
func (fs *FileStore) Close() error {
	if fs.locker == nil {
		return nil
	}
	err := fs.locker.Unlock()
	fs.locker = nil
	return err
}

// Store implements AudioStorageService.Store.
func (fs *FileStore) Store(ctx context.Context, jobID string, r io.Reader, meta *storage.AudioMetadata) (*storage.AudioReference, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if r == nil {
		return nil, fmt.Errorf("audio reader is required")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio content: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio content is empty")
	}

	hash := computeHash(data)

	// Check if this job already holds identical content
	if fs.config.EnableDeduplication {
		if key, ok := fs.addReference(jobID, hash); ok {
			return &storage.AudioReference{
				Key:       key,
				SizeBytes: int64(len(data)),
				Checksum:  hash,
			}, nil
		}
	}

	key := fs.generateKey(jobID, hash)
	filePath, err := fs.resolveKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage key: %w", err)
	}

	// Ensure the job directory exists
	if err := os.MkdirAll(filepath.Dir(filePath), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	// Write file atomically (write to temp, then rename)
	if err := writeFileAtomic(filePath, data); err != nil {
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}

	if fs.config.EnableDeduplication {
		fs.insertReference(jobID, hash, key)
	}

	// Store metadata alongside the file
	if err := fs.storeMetadata(filePath, fs.stampMetadata(meta, jobID, data, hash)); err != nil {
		// Log but don't fail
		logger.Warn("Failed to store audio metadata", "key", key, "error", err)
	}

	fs.storeWaveform(filePath, data)

	return &storage.AudioReference{
		Key:       key,
		SizeBytes: int64(len(data)),
		Checksum:  hash,
	}, nil
}

// Retrieve implements AudioStorageService.Retrieve.
func (fs *FileStore) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := fs.resolveKey(key)
	if err != nil {
		return nil, fmt.Errorf("invalid audio key: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to access audio: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("key %q points to a directory, not audio", key)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	return f, nil
}

// Delete implements AudioStorageService.Delete.
func (fs *FileStore) Delete(ctx context.Context, key string) error {
	filePath, err := fs.resolveKey(key)
	if err != nil {
		return fmt.Errorf("invalid audio key: %w", err)
	}

	// With deduplication on, the file stays until the last reference
	// is released
	if fs.config.EnableDeduplication && fs.releaseReference(key) {
		return nil
	}

	// Delete the sidecars first
	_ = os.Remove(filePath + metaExt)
	_ = os.Remove(filePath + waveformExt)

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete audio: %w", err)
	}

	// Try to remove empty parent directories
	fs.cleanupEmptyDirs(filepath.Dir(filePath))

	return nil
}

// Exists implements AudioStorageService.Exists.
func (fs *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := fs.resolveKey(key)
	if err != nil {
		return false, fmt.Errorf("invalid audio key: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to access audio: %w", err)
	}
	return !info.IsDir(), nil
}

// List implements AudioStorageService.List.
func (fs *FileStore) List(ctx context.Context, jobID string) ([]storage.AudioReference, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	jobDir := filepath.Join(fs.config.BaseDir, jobsDirName, sanitizeName(jobID))
	if err := fs.validatePath(jobDir); err != nil {
		return nil, fmt.Errorf("invalid job ID: %w", err)
	}

	entries, err := os.ReadDir(jobDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []storage.AudioReference{}, nil
		}
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}

	// os.ReadDir returns entries sorted by name, so the listing is
	// already deterministic.
	refs := make([]storage.AudioReference, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), containerExt) {
			continue
		}

		ref := storage.AudioReference{
			Key: path.Join(jobsDirName, sanitizeName(jobID), entry.Name()),
		}
		if info, err := entry.Info(); err == nil {
			ref.SizeBytes = info.Size()
		}
		if meta, err := fs.loadMetadata(filepath.Join(jobDir, entry.Name())); err == nil {
			ref.Checksum = meta.Checksum
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

// Deduplication bookkeeping

// addReference bumps the reference count when the job already stores
// identical content. Returns the existing key and true on a hit.
func (fs *FileStore) addReference(jobID, hash string) (string, bool) {
	ik := indexKey(jobID, hash)

	fs.dedupMu.Lock()
	entry, ok := fs.dedupIndex[ik]
	if ok {
		entry.Refs++
	}
	fs.dedupMu.Unlock()

	if !ok {
		return "", false
	}
	_ = fs.saveDedupIndex()
	return entry.Key, true
}

// insertReference records a freshly written container in the index.
// A concurrent store of the same content may have won the race; then
// the existing entry picks up the reference instead.
func (fs *FileStore) insertReference(jobID, hash, key string) {
	ik := indexKey(jobID, hash)

	fs.dedupMu.Lock()
	if entry, ok := fs.dedupIndex[ik]; ok {
		entry.Refs++
	} else {
		fs.dedupIndex[ik] = &dedupEntry{Key: key, Refs: 1}
	}
	fs.dedupMu.Unlock()

	_ = fs.saveDedupIndex()
}

// releaseReference drops one reference for the key. Returns true when
// other references remain and the file must be kept.
func (fs *FileStore) releaseReference(key string) bool {
	fs.dedupMu.Lock()
	for ik, entry := range fs.dedupIndex {
		if entry.Key != key {
			continue
		}
		if entry.Refs > 1 {
			entry.Refs--
			fs.dedupMu.Unlock()
			_ = fs.saveDedupIndex()
			return true
		}
		delete(fs.dedupIndex, ik)
		break
	}
	fs.dedupMu.Unlock()

	_ = fs.saveDedupIndex()
	return false
}

// indexKey scopes deduplication to one job so a shared container never
// crosses job directories.
func indexKey(jobID, hash string) string {
	return sanitizeName(jobID) + "/" + hash
}

func (fs *FileStore) loadDedupIndex() error {
	data, err := os.ReadFile(filepath.Join(fs.config.BaseDir, dedupIndexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Index doesn't exist yet, that's ok
		}
		return err
	}

	fs.dedupMu.Lock()
	defer fs.dedupMu.Unlock()

	return json.Unmarshal(data, &fs.dedupIndex)
}

func (fs *FileStore) saveDedupIndex() error {
	fs.dedupMu.Lock()
	data, err := json.MarshalIndent(fs.dedupIndex, "", "  ")
	fs.dedupMu.Unlock()

	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(fs.config.BaseDir, dedupIndexName), data, filePerm)
}

// Path handling

// generateKey builds a BaseDir-relative key for a new container.
// Deduplicated stores name files by content hash; otherwise every
// store gets a fresh name so per-unit deletes stay independent.
func (fs *FileStore) generateKey(jobID, hash string) string {
	name := hash
	if !fs.config.EnableDeduplication {
		name = uuid.NewString()
	}
	return path.Join(jobsDirName, sanitizeName(jobID), name+containerExt)
}

// resolveKey maps a storage key onto the filesystem and rejects keys
// that escape the base directory.
func (fs *FileStore) resolveKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key is empty")
	}

	filePath := filepath.Join(fs.config.BaseDir, filepath.FromSlash(key))
	if err := fs.validatePath(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

// validatePath checks that the given path stays inside the base
// directory. Cleaned-path containment catches ../ traversal in keys;
// for paths that exist, resolved symlinks are checked too so a planted
// link cannot point reads or deletes outside the root.
func (fs *FileStore) validatePath(target string) error {
	absBase, err := filepath.Abs(fs.config.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absBase = filepath.Clean(absBase)

	absPath, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if !strings.HasPrefix(absPath+string(filepath.Separator), absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return fmt.Errorf("key %q resolves outside the audio root", target)
	}

	if _, err := os.Lstat(absPath); err == nil {
		// Path exists, resolve symlinks on both sides
		realBase, err := filepath.EvalSymlinks(absBase)
		if err != nil {
			realBase = absBase
		}

		realPath, err := filepath.EvalSymlinks(absPath)
		if err != nil {
			return fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		if !strings.HasPrefix(realPath+string(filepath.Separator), realBase+string(filepath.Separator)) &&
			realPath != realBase {
			return fmt.Errorf("key %q resolves outside the audio root through a symlink", target)
		}
	}

	return nil
}

func (fs *FileStore) cleanupEmptyDirs(dir string) {
	// Don't delete the base directory
	if dir == fs.config.BaseDir || !strings.HasPrefix(dir, fs.config.BaseDir) {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}

	_ = os.Remove(dir)

	// Recursively clean parent
	fs.cleanupEmptyDirs(filepath.Dir(dir))
}

// Sidecars

// stampMetadata fills the bookkeeping fields of the sidecar record.
// Caller-provided fields such as provider, voice and unit pass
// through.
func (fs *FileStore) stampMetadata(meta *storage.AudioMetadata, jobID string, data []byte, hash string) *storage.AudioMetadata {
	stamped := storage.AudioMetadata{}
	if meta != nil {
		stamped = *meta
	}

	stamped.JobID = jobID
	if stamped.MIMEType == "" {
		stamped.MIMEType = containerMIMEType
	}
	if stamped.SampleRate == 0 {
		stamped.SampleRate = audio.SampleRate(data)
	}
	stamped.SizeBytes = int64(len(data))
	stamped.Checksum = hash
	stamped.StoredAt = time.Now().UTC()

	return &stamped
}

func (fs *FileStore) storeMetadata(filePath string, meta *storage.AudioMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath+metaExt, data, filePerm)
}

func (fs *FileStore) loadMetadata(filePath string) (*storage.AudioMetadata, error) {
	data, err := os.ReadFile(filePath + metaExt)
	if err != nil {
		return nil, err
	}

	var meta storage.AudioMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// storeWaveform renders the optional waveform sidecar. Sidecars are
// decoration for the UI; failures only log.
func (fs *FileStore) storeWaveform(filePath string, container []byte) {
	if fs.config.WaveformRenderer == nil {
		return
	}

	img, err := fs.config.WaveformRenderer(container)
	if err != nil {
		logger.Warn("Failed to render waveform sidecar", "path", filePath, "error", err)
		return
	}
	if len(img) == 0 {
		return
	}

	if err := os.WriteFile(filePath+waveformExt, img, filePerm); err != nil {
		logger.Warn("Failed to write waveform sidecar", "path", filePath, "error", err)
	}
}

// Helper functions

func computeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// writeFileAtomic writes via a temp file and rename so readers never
// observe a partial container.
func writeFileAtomic(filePath string, data []byte) error {
	tempPath := filePath + tmpExt
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return err
	}

	// Rename to final path (atomic on POSIX systems)
	return os.Rename(tempPath, filePath)
}

// sanitizeName makes an identifier safe to use as a directory name.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	cleaned := replacer.Replace(name)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "_"
	}
	return cleaned
}
