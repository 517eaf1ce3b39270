package synth

import (
	"context"
	"fmt"

	"github.com/CadenzaLabs/NarrateKit/engine/credentials"
	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// Service converts one unit of text into a finished audio container.
type Service interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio and returns a complete WAV
	// container. One call issues exactly one remote request; retry
	// policy belongs to the caller.
	//
	//nolint:gocritic // hugeParam: SynthesisConfig passed by value to keep per-call configs independent
	Synthesize(ctx context.Context, text string, config SynthesisConfig) ([]byte, error)
}

// SynthesisConfig carries the per-call narration settings.
type SynthesisConfig struct {
	// Voice is the provider voice identifier.
	Voice string

	// StyleInstruction is free-form delivery guidance (tone, emotion,
	// character) for instruction-following providers.
	StyleInstruction string

	// Pace selects the reading speed. Empty and PaceNormal leave the
	// provider's natural pace untouched.
	Pace types.Pace

	// Credential authenticates this call. Nil falls back to the
	// adapter's ambient environment default.
	Credential credentials.Credential

	// Model overrides the adapter's default model.
	Model string
}

// paceDirectives maps each pace level to the fixed natural-language
// directive embedded into the prompt.
var paceDirectives = map[types.Pace]string{
	types.PaceSlow:     "Read the text at a slow, unhurried pace.",
	types.PaceNormal:   "Read the text at a natural pace.",
	types.PaceFast:     "Read the text at a brisk pace.",
	types.PaceVeryFast: "Read the text at a very fast pace.",
}

// PaceDirective returns the reading-speed directive for the given pace
// level. Unknown paces map to the empty string.
func PaceDirective(p types.Pace) string {
	return paceDirectives[p]
}

// BuildPrompt merges the style instruction, the pace directive, and the
// raw text into the single string sent to instruction-following
// providers. Style and pace ride in the content channel, separated from
// the text by a blank line; the providers' separate instruction channel
// proved unreliable for narration delivery.
//
// The pace directive is only appended when the pace deviates from the
// default. An empty combined instruction returns the text unchanged.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to match the Service interface
func BuildPrompt(text string, config SynthesisConfig) string {
	instruction := config.StyleInstruction
	if config.Pace != "" && config.Pace != types.PaceNormal {
		if directive := PaceDirective(config.Pace); directive != "" {
			if instruction != "" {
				instruction += " " + directive
			} else {
				instruction = directive
			}
		}
	}

	if instruction == "" {
		return text
	}
	return instruction + "\n\n" + text
}

// resolveCredential picks the effective credential for one call: the
// explicit config credential when supplied, else the provider's ambient
// default resolved from the environment.
func resolveCredential(
	ctx context.Context, config SynthesisConfig, providerType string,
) (credentials.Credential, error) {
	if config.Credential != nil {
		return config.Credential, nil
	}

	cred, err := credentials.Resolve(ctx, credentials.ResolverConfig{ProviderType: providerType})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialMissing, err)
	}
	return cred, nil
}
