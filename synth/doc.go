// Package synth converts text units into finished audio containers.
//
// The package defines a common Service interface that abstracts speech
// synthesis providers, so the scheduler can fan units out to any backend
// and always receive a complete WAV container back.
//
// # Architecture
//
// The package provides:
//   - Service interface for synthesis providers
//   - SynthesisConfig carrying voice, style, pace, and the per-call credential
//   - Prompt assembly embedding style and pace into the content channel
//   - Provider implementations (Gemini, Amazon Polly, self-hosted REST)
//
// # Usage
//
// Basic usage with Gemini:
//
//	service := synth.NewGemini()
//	container, err := service.Synthesize(ctx, "नमस्ते दुनिया।", synth.SynthesisConfig{
//	    Voice: "Kore",
//	    Pace:  types.PaceSlow,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("out.wav", container, 0o644)
//
// Credentials rotate per call: the scheduler passes a different
// Credential in each SynthesisConfig, and an adapter falls back to its
// ambient environment default when none is supplied.
//
// # Available Providers
//
// The package includes implementations for:
//   - Gemini generative TTS (audio-only generateContent)
//   - Amazon Polly (SigV4-signed, 16 kHz PCM ceiling)
//   - CustomService for self-hosted JSON backends (JMESPath response mapping)
package synth
