// Package voicepack provides voice pack manifests for narration providers.
//
// A voice pack is a K8s-style YAML manifest describing the voices, styles,
// and model of a single TTS provider. Packs are loaded through repository
// interfaces and cached by a Registry:
//
//	repo := voicepack.NewDirRepository("packs")
//	registry := voicepack.NewRegistry(repo)
//	pack, err := registry.Load("studio-hindi")
//
// A resolved pack builds per-call synthesis settings directly:
//
//	cfg, err := pack.SynthesisConfig("", "cheerful")
package voicepack

import (
	"fmt"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/CadenzaLabs/NarrateKit/engine/synth"
)

// KindVoicePack is the manifest kind accepted by ParseVoicePackConfig.
const KindVoicePack = "VoicePack"

// APIVersionV1 is the manifest apiVersion stamped on programmatically
// registered packs.
const APIVersionV1 = "narratekit.cadenzalabs.io/v1"

// VoicePackConfig represents a YAML voice pack file in K8s-style manifest format
type VoicePackConfig struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty"`
	Spec       VoicePackSpec     `yaml:"spec"`
}

// VoicePackSpec contains the actual voice pack configuration
type VoicePackSpec struct {
	Name         string  `yaml:"name,omitempty"`          // Defaults to metadata.name
	Version      string  `yaml:"version"`                 // Semantic version, required
	Description  string  `yaml:"description,omitempty"`
	Provider     string  `yaml:"provider"`                // Synthesizer family this pack targets
	Model        string  `yaml:"model,omitempty"`         // Provider model override
	DefaultVoice string  `yaml:"default_voice,omitempty"` // Defaults to the first listed voice
	Voices       []Voice `yaml:"voices"`
	Styles       []Style `yaml:"styles,omitempty"`
}

// Voice describes one selectable narrator voice.
type Voice struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name,omitempty"`
	Language    string   `yaml:"language,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Style is a named delivery instruction applied at synthesis time.
type Style struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

// ParseVoicePackConfig parses a voice pack from YAML data.
// This is a package-level utility for parsing manifests in the config layer;
// callers read files with os.ReadFile and pass the raw bytes here.
// Returns the parsed VoicePackConfig or an error if parsing/validation fails.
func ParseVoicePackConfig(data []byte) (*VoicePackConfig, error) {
	var config VoicePackConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate manifest format
	if config.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if config.Kind != KindVoicePack {
		return nil, fmt.Errorf("invalid kind: expected '%s', got '%s'", KindVoicePack, config.Kind)
	}
	if config.Metadata.Name == "" {
		return nil, fmt.Errorf("missing required field: metadata.name")
	}
	if err := validateSemanticVersion(config.Spec.Version); err != nil {
		return nil, fmt.Errorf("invalid spec.version: %w", err)
	}
	if err := validateVoices(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateVoices checks the voice list: at least one voice, unique
// non-empty IDs, and a default_voice that names a listed voice.
func validateVoices(config *VoicePackConfig) error {
	if len(config.Spec.Voices) == 0 {
		return fmt.Errorf("missing required field: spec.voices")
	}

	seen := make(map[string]bool, len(config.Spec.Voices))
	for i, voice := range config.Spec.Voices {
		if voice.ID == "" {
			return fmt.Errorf("spec.voices[%d]: missing voice id", i)
		}
		if seen[voice.ID] {
			return fmt.Errorf("duplicate voice id: %s", voice.ID)
		}
		seen[voice.ID] = true
	}

	if config.Spec.DefaultVoice != "" && !seen[config.Spec.DefaultVoice] {
		return fmt.Errorf("default_voice '%s' does not match any voice id", config.Spec.DefaultVoice)
	}

	return nil
}

// VoiceByID returns the voice with the given ID.
func (c *VoicePackConfig) VoiceByID(id string) (*Voice, bool) {
	for i := range c.Spec.Voices {
		if c.Spec.Voices[i].ID == id {
			return &c.Spec.Voices[i], true
		}
	}
	return nil, false
}

// StyleByName returns the style with the given name.
func (c *VoicePackConfig) StyleByName(name string) (*Style, bool) {
	for i := range c.Spec.Styles {
		if c.Spec.Styles[i].Name == name {
			return &c.Spec.Styles[i], true
		}
	}
	return nil, false
}

// ResolveVoice maps a requested voice ID to the provider voice to use.
// An empty ID selects the pack's default voice, falling back to the first
// listed voice when no default is set. Unknown IDs return ErrVoiceNotFound.
func (c *VoicePackConfig) ResolveVoice(voiceID string) (string, error) {
	if voiceID == "" {
		voiceID = c.Spec.DefaultVoice
		if voiceID == "" && len(c.Spec.Voices) > 0 {
			voiceID = c.Spec.Voices[0].ID
		}
	}
	if voiceID == "" {
		return "", fmt.Errorf("%w: pack has no voices", ErrVoiceNotFound)
	}
	if _, ok := c.VoiceByID(voiceID); !ok {
		return "", fmt.Errorf("%w: %s", ErrVoiceNotFound, voiceID)
	}
	return voiceID, nil
}

// StyleInstruction returns the delivery instruction for the named style.
// An empty name means no style and yields an empty instruction. Unknown
// names return ErrStyleNotFound.
func (c *VoicePackConfig) StyleInstruction(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	style, ok := c.StyleByName(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrStyleNotFound, name)
	}
	return style.Instruction, nil
}

// SynthesisConfig builds per-call synthesis settings from the pack: the
// resolved voice, the style instruction, and the pack's model override.
// Empty arguments select the pack defaults. Pace and credential are left
// for the caller to fill.
func (c *VoicePackConfig) SynthesisConfig(voiceID, styleName string) (synth.SynthesisConfig, error) {
	voice, err := c.ResolveVoice(voiceID)
	if err != nil {
		return synth.SynthesisConfig{}, err
	}

	instruction, err := c.StyleInstruction(styleName)
	if err != nil {
		return synth.SynthesisConfig{}, err
	}

	return synth.SynthesisConfig{
		Voice:            voice,
		StyleInstruction: instruction,
		Model:            c.Spec.Model,
	}, nil
}
