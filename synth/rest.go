package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmespath/go-jmespath"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/version"
)

const (
	customProviderType = "custom"

	// Default timeout for self-hosted backend requests.
	defaultCustomTimeout = 60 * time.Second

	// Default request field names.
	customDefaultTextField  = "text"
	customDefaultVoiceField = "voice"

	// Default JMESPath expression selecting the audio payload.
	customDefaultAudioExpr = "audio"

	// HTTP status code threshold for server errors.
	customServerErrorThreshold = 500
)

// CustomService calls a self-hosted JSON TTS backend. Request field
// names, static extra fields, and the response location of the base64
// audio payload are all configurable, so one adapter covers the common
// open-source serving shapes (Orpheus, Parler, Coqui wrappers).
type CustomService struct {
	name        string
	endpoint    string
	client      *http.Client
	headers     map[string]string
	textField   string
	voiceField  string
	extraFields map[string]any
	audioExpr   string
	sampleRate  int
	limiter     *rate.Limiter
}

// CustomOption configures the custom synthesis service.
type CustomOption func(*CustomService)

// WithCustomName overrides the provider identifier returned by Name.
func WithCustomName(name string) CustomOption {
	return func(s *CustomService) {
		s.name = name
	}
}

// WithCustomClient sets a custom HTTP client.
func WithCustomClient(client *http.Client) CustomOption {
	return func(s *CustomService) {
		s.client = client
	}
}

// WithCustomHeaders sets static headers sent on every request.
func WithCustomHeaders(headers map[string]string) CustomOption {
	return func(s *CustomService) {
		s.headers = headers
	}
}

// WithCustomTextField sets the request field carrying the prompt text.
func WithCustomTextField(field string) CustomOption {
	return func(s *CustomService) {
		s.textField = field
	}
}

// WithCustomVoiceField sets the request field carrying the voice ID.
func WithCustomVoiceField(field string) CustomOption {
	return func(s *CustomService) {
		s.voiceField = field
	}
}

// WithCustomExtraFields sets static request fields merged into every
// request body (model names, output format flags).
func WithCustomExtraFields(fields map[string]any) CustomOption {
	return func(s *CustomService) {
		s.extraFields = fields
	}
}

// WithCustomAudioExpr sets the JMESPath expression selecting the base64
// audio payload from the response, e.g. "data.audio_content" or
// "chunks[0].audio".
func WithCustomAudioExpr(expr string) CustomOption {
	return func(s *CustomService) {
		s.audioExpr = expr
	}
}

// WithCustomSampleRate declares the PCM sample rate the backend produces.
func WithCustomSampleRate(sampleRate int) CustomOption {
	return func(s *CustomService) {
		s.sampleRate = sampleRate
	}
}

// WithCustomRequestsPerMinute caps outbound request rate. Zero or
// negative disables the limiter.
func WithCustomRequestsPerMinute(rpm int) CustomOption {
	return func(s *CustomService) {
		if rpm <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/secondsPerMinute), 1)
	}
}

// NewCustom creates a synthesis service for a self-hosted JSON backend.
// The endpoint is the full synthesis URL.
func NewCustom(endpoint string, opts ...CustomOption) (*CustomService, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	s := &CustomService{
		name:     customProviderType,
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   defaultCustomTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		textField:  customDefaultTextField,
		voiceField: customDefaultVoiceField,
		audioExpr:  customDefaultAudioExpr,
		sampleRate: audio.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := jmespath.Compile(s.audioExpr); err != nil {
		return nil, fmt.Errorf("invalid audio expression %q: %w", s.audioExpr, err)
	}
	return s, nil
}

// Name returns the provider identifier.
func (s *CustomService) Name() string {
	return s.name
}

// Synthesize converts text to audio using the configured backend. The
// backend is expected to return JSON carrying base64 linear PCM at the
// configured sample rate.
//
// A missing credential is not an error here; self-hosted backends
// commonly run unauthenticated on a private network.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *CustomService) Synthesize(
	ctx context.Context, text string, config SynthesisConfig,
) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	cred, err := resolveCredential(ctx, config, customProviderType)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(text, config)

	body := make(map[string]any, len(s.extraFields)+2)
	for k, v := range s.extraFields {
		body[k] = v
	}
	body[s.textField] = prompt
	if config.Voice != "" {
		body[s.voiceField] = config.Voice
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.endpoint,
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	if err := cred.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to apply credential: %w", err)
	}

	logger.SynthesisCall(s.name, config.Voice, len(text))
	logger.APIRequest(s.name, http.MethodPost, req.URL.String(), s.headers, body)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.SynthesisFailure(s.name, config.Voice, err)
		return nil, NewSynthesisError(s.name, "", "request failed", err, true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewSynthesisError(s.name, "", "failed to read response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		logger.APIResponse(s.name, resp.StatusCode, string(respBody), nil)
		synthErr := s.handleError(resp.StatusCode, respBody)
		logger.SynthesisFailure(s.name, config.Voice, synthErr)
		return nil, synthErr
	}

	pcm, err := s.extractAudio(respBody)
	if err != nil {
		logger.SynthesisFailure(s.name, config.Voice, err)
		return nil, err
	}

	container := audio.Encode(pcm, s.sampleRate)
	logger.SynthesisResult(s.name, config.Voice, len(container))
	return container, nil
}

// extractAudio selects the base64 audio payload from the response via
// the configured JMESPath expression and decodes it.
func (s *CustomService) extractAudio(respBody []byte) ([]byte, error) {
	var payload any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, NewSynthesisError(s.name, "", "failed to parse response", err, false)
	}

	result, err := jmespath.Search(s.audioExpr, payload)
	if err != nil {
		return nil, NewSynthesisError(s.name, "", "audio expression failed", err, false)
	}

	encoded, ok := result.(string)
	if !ok || encoded == "" {
		return nil, NewSynthesisError(
			s.name, "", "response contained no audio", ErrEmptyResponse, false,
		)
	}

	pcm, err := audio.DecodeBase64PCM(encoded)
	if err != nil {
		return nil, NewSynthesisError(s.name, "", "failed to decode audio payload", err, false)
	}
	if len(pcm) == 0 {
		return nil, NewSynthesisError(
			s.name, "", "response contained no audio", ErrEmptyResponse, false,
		)
	}
	return pcm, nil
}

// handleError converts a non-200 response into a SynthesisError with a
// normalized, user-presentable message.
func (s *CustomService) handleError(statusCode int, body []byte) error {
	message := NormalizeRemoteError(string(body))

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= customServerErrorThreshold

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
		s.name,
		fmt.Sprintf("%d", statusCode),
		message,
		cause,
		retryable,
	)
}
