package voicepack

import (
	"fmt"
	"sync"
)

// Repository abstracts voice pack storage.
type Repository interface {
	LoadPack(name string) (*VoicePackConfig, error)
	ListPacks() ([]string, error)
	SavePack(config *VoicePackConfig) error
}

// Registry manages voice packs loaded through a repository, with caching.
type Registry struct {
	repository Repository
	cache      map[string]*VoicePackConfig
	mu         sync.RWMutex
}

// NewRegistry creates a registry backed by the given repository.
func NewRegistry(repository Repository) *Registry {
	return &Registry{
		repository: repository,
		cache:      make(map[string]*VoicePackConfig),
	}
}

// Load returns the voice pack with the given name, loading it from the
// repository on first use and caching it afterwards.
func (r *Registry) Load(name string) (*VoicePackConfig, error) {
	if r.repository == nil {
		return nil, fmt.Errorf("registry requires repository")
	}

	// Check cache first
	r.mu.RLock()
	if cached, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	// Load from repository
	config, err := r.repository.LoadPack(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice pack from repository: %w", err)
	}

	r.populateDefaults(config)

	// Cache the config
	r.mu.Lock()
	r.cache[name] = config
	r.mu.Unlock()

	return config, nil
}

// RegisterConfig registers a voice pack directly into the registry.
// This allows programmatic registration of packs without requiring disk
// files. If a repository is configured, the config is persisted there as
// well.
func (r *Registry) RegisterConfig(name string, config *VoicePackConfig) error {
	if name == "" {
		return ErrEmptyPackName
	}
	if config == nil {
		return ErrNilConfig
	}

	// Ensure the manifest name is set in the config
	if config.Metadata.Name == "" {
		config.Metadata.Name = name
	}

	// Populate defaults before saving
	r.populateDefaults(config)

	// Persist to repository if available
	if r.repository != nil {
		if err := r.repository.SavePack(config); err != nil {
			return fmt.Errorf("failed to save voice pack to repository: %w", err)
		}
	}

	// Cache the config
	r.mu.Lock()
	r.cache[name] = config
	r.mu.Unlock()

	return nil
}

// populateDefaults fills in default values for optional fields in the config
func (r *Registry) populateDefaults(config *VoicePackConfig) {
	// Manifest envelope defaults for programmatically built configs
	if config.APIVersion == "" {
		config.APIVersion = APIVersionV1
	}
	if config.Kind == "" {
		config.Kind = KindVoicePack
	}

	// Spec name mirrors the manifest name unless set explicitly
	if config.Spec.Name == "" {
		config.Spec.Name = config.Metadata.Name
	}

	// The first listed voice doubles as the default
	if config.Spec.DefaultVoice == "" && len(config.Spec.Voices) > 0 {
		config.Spec.DefaultVoice = config.Spec.Voices[0].ID
	}

	// Voices without a display name show their ID
	for i := range config.Spec.Voices {
		if config.Spec.Voices[i].DisplayName == "" {
			config.Spec.Voices[i].DisplayName = config.Spec.Voices[i].ID
		}
	}
}

// ListPacks returns all available voice pack names from the repository.
// Falls back to cached packs if the repository is unavailable or empty.
func (r *Registry) ListPacks() []string {
	// Try repository first for the complete list
	if r.repository != nil {
		if names, err := r.repository.ListPacks(); err == nil && len(names) > 0 {
			return names
		}
	}

	// Fallback: return cached pack names
	r.mu.RLock()
	defer r.mu.RUnlock()
	return extractKeys(r.cache)
}

// CachedPacks returns the names of currently cached packs.
// For a complete list including uncached packs, use ListPacks instead.
func (r *Registry) CachedPacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return extractKeys(r.cache)
}

// ClearCache clears all cached voice packs
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*VoicePackConfig)
}

// ResolveVoice resolves a voice ID against the named pack. An empty
// voice ID selects the pack's default voice.
func (r *Registry) ResolveVoice(packName, voiceID string) (string, error) {
	config, err := r.Load(packName)
	if err != nil {
		return "", err
	}
	return config.ResolveVoice(voiceID)
}

// StyleInstruction returns the named style's instruction from the named pack.
func (r *Registry) StyleInstruction(packName, styleName string) (string, error) {
	config, err := r.Load(packName)
	if err != nil {
		return "", err
	}
	return config.StyleInstruction(styleName)
}

// Info returns summary information about a voice pack
func (r *Registry) Info(name string) (*PackInfo, error) {
	config, err := r.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get pack info: %w", err)
	}

	voices := make([]string, 0, len(config.Spec.Voices))
	for _, voice := range config.Spec.Voices {
		voices = append(voices, voice.ID)
	}
	styles := make([]string, 0, len(config.Spec.Styles))
	for _, style := range config.Spec.Styles {
		styles = append(styles, style.Name)
	}

	return &PackInfo{
		Name:         config.Metadata.Name,
		Version:      config.Spec.Version,
		Description:  config.Spec.Description,
		Provider:     config.Spec.Provider,
		Model:        config.Spec.Model,
		DefaultVoice: config.Spec.DefaultVoice,
		Voices:       voices,
		Styles:       styles,
	}, nil
}

// PackInfo provides summary information about a voice pack
type PackInfo struct {
	Name         string
	Version      string
	Description  string
	Provider     string
	Model        string
	DefaultVoice string
	Voices       []string
	Styles       []string
}

// extractKeys is a generic helper to extract keys from any map with string keys
func extractKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
