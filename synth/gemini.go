package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/credentials"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/version"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiProviderType = "gemini"

	// ModelGeminiFlashTTS is the Gemini TTS model optimized for speed.
	ModelGeminiFlashTTS = "gemini-2.5-flash-preview-tts"
	// ModelGeminiProTTS is the Gemini TTS model optimized for quality.
	ModelGeminiProTTS = "gemini-2.5-pro-preview-tts"

	// DefaultGeminiVoice is the prebuilt voice used when none is configured.
	DefaultGeminiVoice = "Kore"

	// Narration chunks run long; generative synthesis is slow.
	defaultGeminiTimeout = 120 * time.Second

	// HTTP status code threshold for server errors.
	geminiServerErrorThreshold = 500

	secondsPerMinute = 60
)

// GeminiService implements synthesis using Gemini's generative TTS API.
// The credential arrives per call through SynthesisConfig so callers can
// rotate keys between requests; GEMINI_API_KEY is the ambient fallback.
type GeminiService struct {
	baseURL string
	client  *http.Client
	model   string
	voice   string
	limiter *rate.Limiter
}

// GeminiOption configures the Gemini synthesis service.
type GeminiOption func(*GeminiService)

// WithGeminiBaseURL sets a custom base URL (for testing or proxies).
func WithGeminiBaseURL(url string) GeminiOption {
	return func(s *GeminiService) {
		s.baseURL = url
	}
}

// WithGeminiClient sets a custom HTTP client.
func WithGeminiClient(client *http.Client) GeminiOption {
	return func(s *GeminiService) {
		s.client = client
	}
}

// WithGeminiModel sets the TTS model to use.
func WithGeminiModel(model string) GeminiOption {
	return func(s *GeminiService) {
		s.model = model
	}
}

// WithGeminiVoice sets the default prebuilt voice.
func WithGeminiVoice(voice string) GeminiOption {
	return func(s *GeminiService) {
		s.voice = voice
	}
}

// WithGeminiRequestsPerMinute caps outbound request rate. Zero or
// negative disables the limiter.
func WithGeminiRequestsPerMinute(rpm int) GeminiOption {
	return func(s *GeminiService) {
		if rpm <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/secondsPerMinute), 1)
	}
}

// NewGemini creates a Gemini synthesis service.
func NewGemini(opts ...GeminiOption) *GeminiService {
	s := &GeminiService{
		baseURL: geminiBaseURL,
		client: &http.Client{
			Timeout:   defaultGeminiTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model: ModelGeminiFlashTTS,
		voice: DefaultGeminiVoice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *GeminiService) Name() string {
	return geminiProviderType
}

// geminiRequest is the request body for Gemini's generateContent API.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

// geminiResponse is the subset of the generateContent response we read.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Synthesize converts text to audio using Gemini's generative TTS API.
// The response carries base64 linear PCM at 24 kHz, which is wrapped
// into a WAV container before returning.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *GeminiService) Synthesize(
	ctx context.Context, text string, config SynthesisConfig,
) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	cred, err := resolveCredential(ctx, config, geminiProviderType)
	if err != nil {
		return nil, err
	}
	if _, unauthenticated := cred.(*credentials.NoOpCredential); unauthenticated {
		return nil, ErrCredentialMissing
	}

	// Use config voice or default
	voice := config.Voice
	if voice == "" {
		voice = s.voice
	}

	// Use config model or service default
	model := config.Model
	if model == "" {
		model = s.model
	}

	prompt := BuildPrompt(text, config)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voice},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	endpoint := s.baseURL + "/models/" + model + ":generateContent"

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		endpoint,
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if err := cred.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to apply credential: %w", err)
	}

	logger.SynthesisCall(geminiProviderType, voice, len(text), "model", model)
	logger.APIRequest(geminiProviderType, http.MethodPost, req.URL.String(), nil, reqBody)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.SynthesisFailure(geminiProviderType, voice, err)
		return nil, NewSynthesisError(geminiProviderType, "", "request failed", err, true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewSynthesisError(geminiProviderType, "", "failed to read response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		logger.APIResponse(geminiProviderType, resp.StatusCode, string(respBody), nil)
		synthErr := s.handleError(resp.StatusCode, respBody)
		logger.SynthesisFailure(geminiProviderType, voice, synthErr)
		return nil, synthErr
	}

	pcm, err := s.extractAudio(respBody)
	if err != nil {
		logger.SynthesisFailure(geminiProviderType, voice, err)
		return nil, err
	}

	container := audio.Encode(pcm, audio.DefaultSampleRate)
	logger.SynthesisResult(geminiProviderType, voice, len(container), "model", model)
	return container, nil
}

// extractAudio pulls the base64 PCM payload out of a generateContent
// response. The audio arrives as inlineData on the first candidate's
// parts; text parts are skipped.
func (s *GeminiService) extractAudio(respBody []byte) ([]byte, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewSynthesisError(geminiProviderType, "", "failed to parse response", err, false)
	}

	var encoded string
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				encoded = part.InlineData.Data
				break
			}
		}
		if encoded != "" {
			break
		}
	}

	if encoded == "" {
		return nil, NewSynthesisError(
			geminiProviderType, "", "response contained no audio", ErrEmptyResponse, false,
		)
	}

	pcm, err := audio.DecodeBase64PCM(encoded)
	if err != nil {
		return nil, NewSynthesisError(geminiProviderType, "", "failed to decode audio payload", err, false)
	}
	if len(pcm) == 0 {
		return nil, NewSynthesisError(
			geminiProviderType, "", "response contained no audio", ErrEmptyResponse, false,
		)
	}
	return pcm, nil
}

// handleError converts a non-200 response into a SynthesisError with a
// normalized, user-presentable message.
func (s *GeminiService) handleError(statusCode int, body []byte) error {
	message := NormalizeRemoteError(string(body))

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= geminiServerErrorThreshold

	var cause error
	switch statusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusServiceUnavailable:
		cause = ErrServiceUnavailable
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = fmt.Errorf("invalid API key")
	default:
		cause = ErrRemoteRejected
	}

	return NewSynthesisError(
		geminiProviderType,
		fmt.Sprintf("%d", statusCode),
		message,
		cause,
		retryable,
	)
}
