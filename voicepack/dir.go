package voicepack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Compile-time interface check
var _ Repository = (*DirRepository)(nil)

// DirRepository loads voice packs from YAML files in a directory
type DirRepository struct {
	dir   string
	cache map[string]*VoicePackConfig
}

// NewDirRepository creates a directory-backed voice pack repository
func NewDirRepository(dir string) *DirRepository {
	return &DirRepository{
		dir:   dir,
		cache: make(map[string]*VoicePackConfig),
	}
}

// LoadPack loads a voice pack by manifest name
func (r *DirRepository) LoadPack(name string) (*VoicePackConfig, error) {
	// Check cache
	if cached, ok := r.cache[name]; ok {
		return cached, nil
	}

	filePath, err := r.resolveFile(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	config, err := ParseVoicePackConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	// Cache and return
	r.cache[name] = config
	return config, nil
}

// resolveFile finds the YAML file for a pack name: first by file name,
// then by scanning manifests for a matching metadata.name.
func (r *DirRepository) resolveFile(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		candidate := filepath.Join(r.dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	var found string
	_ = filepath.WalkDir(r.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAML(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		var config VoicePackConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil
		}

		if config.Metadata.Name == name {
			found = path
			return filepath.SkipAll // Stop searching
		}
		return nil
	})

	if found == "" {
		return "", fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	return found, nil
}

// isYAML reports whether the path has a YAML file extension.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ListPacks returns the manifest names of all voice packs in the directory
func (r *DirRepository) ListPacks() ([]string, error) {
	names := []string{}

	err := filepath.WalkDir(r.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAML(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		var config VoicePackConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil
		}

		if config.Metadata.Name != "" {
			names = append(names, config.Metadata.Name)
		}

		return nil
	})

	return names, err
}

// SavePack writes a voice pack manifest to the directory as <name>.yaml
func (r *DirRepository) SavePack(config *VoicePackConfig) error {
	if config == nil {
		return ErrNilConfig
	}
	if config.Metadata.Name == "" {
		return ErrEmptyPackName
	}

	data, err := yaml.Marshal(savedManifest{
		APIVersion: config.APIVersion,
		Kind:       config.Kind,
		Metadata: savedMetadata{
			Name:        config.Metadata.Name,
			Labels:      config.Metadata.Labels,
			Annotations: config.Metadata.Annotations,
		},
		Spec: config.Spec,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal voice pack: %w", err)
	}

	path := filepath.Join(r.dir, config.Metadata.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write voice pack: %w", err)
	}

	r.cache[config.Metadata.Name] = config
	return nil
}

// savedManifest mirrors VoicePackConfig with plain YAML metadata, keeping
// apimachinery's internal object fields out of saved files.
type savedManifest struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Metadata   savedMetadata `yaml:"metadata"`
	Spec       VoicePackSpec `yaml:"spec"`
}

type savedMetadata struct {
	Name        string            `yaml:"name"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}
