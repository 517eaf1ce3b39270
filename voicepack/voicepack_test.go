package voicepack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completePackYAML = `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: studio-hindi
spec:
  version: 1.2.0
  description: Studio narration voices for Hindi content
  provider: gemini
  model: gemini-2.5-flash-preview-tts
  default_voice: kore
  voices:
    - id: kore
      display_name: Kore
      language: hi-IN
      tags: [warm, female]
    - id: puck
      language: en-US
  styles:
    - name: cheerful
      instruction: Speak with bright, upbeat energy.
    - name: calm
      instruction: Speak softly and evenly.
`

func TestParseVoicePackConfig(t *testing.T) {
	t.Run("parses a complete manifest", func(t *testing.T) {
		config, err := ParseVoicePackConfig([]byte(completePackYAML))

		require.NoError(t, err)
		assert.Equal(t, "narratekit.cadenzalabs.io/v1", config.APIVersion)
		assert.Equal(t, KindVoicePack, config.Kind)
		assert.Equal(t, "studio-hindi", config.Metadata.Name)
		assert.Equal(t, "1.2.0", config.Spec.Version)
		assert.Equal(t, "gemini", config.Spec.Provider)
		assert.Equal(t, "gemini-2.5-flash-preview-tts", config.Spec.Model)
		assert.Equal(t, "kore", config.Spec.DefaultVoice)

		require.Len(t, config.Spec.Voices, 2)
		assert.Equal(t, "Kore", config.Spec.Voices[0].DisplayName)
		assert.Equal(t, "hi-IN", config.Spec.Voices[0].Language)
		assert.Equal(t, []string{"warm", "female"}, config.Spec.Voices[0].Tags)
		assert.Equal(t, "puck", config.Spec.Voices[1].ID)

		require.Len(t, config.Spec.Styles, 2)
		assert.Equal(t, "cheerful", config.Spec.Styles[0].Name)
		assert.Equal(t, "Speak with bright, upbeat energy.", config.Spec.Styles[0].Instruction)
	})

	t.Run("parses a minimal manifest", func(t *testing.T) {
		manifest := `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: minimal
spec:
  version: 0.1.0
  provider: polly
  voices:
    - id: kajal
`
		config, err := ParseVoicePackConfig([]byte(manifest))

		require.NoError(t, err)
		assert.Equal(t, "minimal", config.Metadata.Name)
		assert.Empty(t, config.Spec.DefaultVoice)
		assert.Empty(t, config.Spec.Styles)
	})
}

func TestParseVoicePackConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		errMsg   string
	}{
		{
			name:     "malformed yaml",
			manifest: "{{not yaml",
			errMsg:   "failed to parse YAML",
		},
		{
			name: "missing apiVersion",
			manifest: `kind: VoicePack
metadata:
  name: pack
spec:
  version: 1.0.0
  voices:
    - id: kore
`,
			errMsg: "apiVersion",
		},
		{
			name: "wrong kind",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: PromptConfig
metadata:
  name: pack
spec:
  version: 1.0.0
  voices:
    - id: kore
`,
			errMsg: "invalid kind",
		},
		{
			name: "missing metadata name",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
spec:
  version: 1.0.0
  voices:
    - id: kore
`,
			errMsg: "metadata.name",
		},
		{
			name: "missing version",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  voices:
    - id: kore
`,
			errMsg: "spec.version",
		},
		{
			name: "incomplete version",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  version: "1.0"
  voices:
    - id: kore
`,
			errMsg: "invalid semantic version",
		},
		{
			name: "no voices",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  version: 1.0.0
`,
			errMsg: "spec.voices",
		},
		{
			name: "empty voice id",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  version: 1.0.0
  voices:
    - display_name: Nameless
`,
			errMsg: "missing voice id",
		},
		{
			name: "duplicate voice id",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  version: 1.0.0
  voices:
    - id: kore
    - id: kore
`,
			errMsg: "duplicate voice id",
		},
		{
			name: "unknown default voice",
			manifest: `apiVersion: narratekit.cadenzalabs.io/v1
kind: VoicePack
metadata:
  name: pack
spec:
  version: 1.0.0
  default_voice: ghost
  voices:
    - id: kore
`,
			errMsg: "default_voice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParseVoicePackConfig([]byte(tt.manifest))

			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVoicePackConfig_VoiceByID(t *testing.T) {
	config, err := ParseVoicePackConfig([]byte(completePackYAML))
	require.NoError(t, err)

	t.Run("finds an existing voice", func(t *testing.T) {
		voice, ok := config.VoiceByID("puck")
		require.True(t, ok)
		assert.Equal(t, "en-US", voice.Language)
	})

	t.Run("reports missing voices", func(t *testing.T) {
		voice, ok := config.VoiceByID("ghost")
		assert.False(t, ok)
		assert.Nil(t, voice)
	})
}

func TestVoicePackConfig_StyleByName(t *testing.T) {
	config, err := ParseVoicePackConfig([]byte(completePackYAML))
	require.NoError(t, err)

	style, ok := config.StyleByName("calm")
	require.True(t, ok)
	assert.Equal(t, "Speak softly and evenly.", style.Instruction)

	_, ok = config.StyleByName("angry")
	assert.False(t, ok)
}

func TestVoicePackConfig_ResolveVoice(t *testing.T) {
	config, err := ParseVoicePackConfig([]byte(completePackYAML))
	require.NoError(t, err)

	t.Run("empty id selects the default voice", func(t *testing.T) {
		voice, err := config.ResolveVoice("")
		require.NoError(t, err)
		assert.Equal(t, "kore", voice)
	})

	t.Run("explicit id passes through", func(t *testing.T) {
		voice, err := config.ResolveVoice("puck")
		require.NoError(t, err)
		assert.Equal(t, "puck", voice)
	})

	t.Run("unknown id fails", func(t *testing.T) {
		_, err := config.ResolveVoice("ghost")
		assert.ErrorIs(t, err, ErrVoiceNotFound)
	})

	t.Run("falls back to the first voice without a default", func(t *testing.T) {
		noDefault := &VoicePackConfig{
			Spec: VoicePackSpec{
				Voices: []Voice{{ID: "aditi"}, {ID: "raveena"}},
			},
		}

		voice, err := noDefault.ResolveVoice("")
		require.NoError(t, err)
		assert.Equal(t, "aditi", voice)
	})

	t.Run("fails when the pack has no voices", func(t *testing.T) {
		empty := &VoicePackConfig{}
		_, err := empty.ResolveVoice("")
		assert.ErrorIs(t, err, ErrVoiceNotFound)
	})
}

func TestVoicePackConfig_StyleInstruction(t *testing.T) {
	config, err := ParseVoicePackConfig([]byte(completePackYAML))
	require.NoError(t, err)

	t.Run("returns the named instruction", func(t *testing.T) {
		instruction, err := config.StyleInstruction("cheerful")
		require.NoError(t, err)
		assert.Equal(t, "Speak with bright, upbeat energy.", instruction)
	})

	t.Run("empty name means no style", func(t *testing.T) {
		instruction, err := config.StyleInstruction("")
		require.NoError(t, err)
		assert.Empty(t, instruction)
	})

	t.Run("unknown name fails", func(t *testing.T) {
		_, err := config.StyleInstruction("angry")
		assert.ErrorIs(t, err, ErrStyleNotFound)
	})
}

func TestVoicePackConfig_SynthesisConfig(t *testing.T) {
	config, err := ParseVoicePackConfig([]byte(completePackYAML))
	require.NoError(t, err)

	t.Run("builds settings from pack defaults", func(t *testing.T) {
		cfg, err := config.SynthesisConfig("", "calm")

		require.NoError(t, err)
		assert.Equal(t, "kore", cfg.Voice)
		assert.Equal(t, "Speak softly and evenly.", cfg.StyleInstruction)
		assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Model)
	})

	t.Run("builds settings for an explicit voice and no style", func(t *testing.T) {
		cfg, err := config.SynthesisConfig("puck", "")

		require.NoError(t, err)
		assert.Equal(t, "puck", cfg.Voice)
		assert.Empty(t, cfg.StyleInstruction)
	})

	t.Run("propagates voice resolution failures", func(t *testing.T) {
		_, err := config.SynthesisConfig("ghost", "")
		assert.ErrorIs(t, err, ErrVoiceNotFound)
	})

	t.Run("propagates style resolution failures", func(t *testing.T) {
		_, err := config.SynthesisConfig("", "angry")
		assert.ErrorIs(t, err, ErrStyleNotFound)
	})
}
