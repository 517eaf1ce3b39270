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

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
	"github.com/CadenzaLabs/NarrateKit/engine/credentials"
	"github.com/CadenzaLabs/NarrateKit/engine/logger"
	"github.com/CadenzaLabs/NarrateKit/engine/version"
)

const (
	pollyProviderType = "polly"
	pollySpeechPath   = "/v1/speech"

	// PollySampleRate is Polly's PCM output ceiling. Containers built
	// here declare 16 kHz; nothing downstream resamples.
	PollySampleRate = 16000

	// DefaultPollyVoice is the bilingual Hindi/English neural voice.
	DefaultPollyVoice = "Kajal"

	// PollyEngineNeural selects the neural synthesis engine.
	PollyEngineNeural = "neural"
	// PollyEngineStandard selects the standard synthesis engine.
	PollyEngineStandard = "standard"

	defaultPollyRegion  = "us-east-1"
	defaultPollyTimeout = 30 * time.Second

	// HTTP status code threshold for server errors.
	pollyServerErrorThreshold = 500
)

// PollyService implements synthesis using Amazon Polly. Requests are
// SigV4-signed; the credential comes from SynthesisConfig or falls back
// to the default AWS credential chain.
//
// Polly reads the text verbatim. Style instructions and pace directives
// are generative-model concepts and are never embedded here; they would
// be spoken aloud.
type PollyService struct {
	region   string
	voice    string
	engine   string
	language string
	endpoint string
	client   *http.Client
}

// PollyOption configures the Polly synthesis service.
type PollyOption func(*PollyService)

// WithPollyRegion sets the AWS region.
func WithPollyRegion(region string) PollyOption {
	return func(s *PollyService) {
		s.region = region
	}
}

// WithPollyVoice sets the default voice ID.
func WithPollyVoice(voice string) PollyOption {
	return func(s *PollyService) {
		s.voice = voice
	}
}

// WithPollyEngine selects the synthesis engine.
func WithPollyEngine(engine string) PollyOption {
	return func(s *PollyService) {
		s.engine = engine
	}
}

// WithPollyLanguageCode pins the language for bilingual voices,
// e.g. "hi-IN" for Kajal.
func WithPollyLanguageCode(code string) PollyOption {
	return func(s *PollyService) {
		s.language = code
	}
}

// WithPollyClient sets a custom HTTP client.
func WithPollyClient(client *http.Client) PollyOption {
	return func(s *PollyService) {
		s.client = client
	}
}

// WithPollyEndpoint overrides the full endpoint URL (for testing or
// VPC endpoints). The default is the regional Polly endpoint.
func WithPollyEndpoint(endpoint string) PollyOption {
	return func(s *PollyService) {
		s.endpoint = endpoint
	}
}

// NewPolly creates an Amazon Polly synthesis service.
func NewPolly(opts ...PollyOption) *PollyService {
	s := &PollyService{
		region: defaultPollyRegion,
		voice:  DefaultPollyVoice,
		engine: PollyEngineNeural,
		client: &http.Client{
			Timeout:   defaultPollyTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *PollyService) Name() string {
	return pollyProviderType
}

// pollyRequest is the request body for Polly's SynthesizeSpeech API.
type pollyRequest struct {
	Text         string `json:"Text"`
	VoiceID      string `json:"VoiceId"`
	OutputFormat string `json:"OutputFormat"`
	SampleRate   string `json:"SampleRate"`
	Engine       string `json:"Engine,omitempty"`
	LanguageCode string `json:"LanguageCode,omitempty"`
}

// Synthesize converts text to audio using Amazon Polly. Polly returns
// raw linear PCM for OutputFormat "pcm", which is wrapped into a WAV
// container at 16 kHz before returning.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *PollyService) Synthesize(
	ctx context.Context, text string, config SynthesisConfig,
) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	cred, err := s.resolveAWSCredential(ctx, config)
	if err != nil {
		return nil, err
	}

	// Use config voice or default
	voice := config.Voice
	if voice == "" {
		voice = s.voice
	}

	reqBody := pollyRequest{
		Text:         text,
		VoiceID:      voice,
		OutputFormat: "pcm",
		SampleRate:   fmt.Sprintf("%d", PollySampleRate),
		Engine:       s.engine,
		LanguageCode: s.language,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = credentials.PollyEndpoint(s.region)
	}
	endpoint += pollySpeechPath

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
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	logger.SynthesisCall(pollyProviderType, voice, len(text), "region", s.region)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.SynthesisFailure(pollyProviderType, voice, err)
		return nil, NewSynthesisError(pollyProviderType, "", "request failed", err, true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewSynthesisError(pollyProviderType, "", "failed to read response", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		logger.APIResponse(pollyProviderType, resp.StatusCode, string(respBody), nil)
		synthErr := s.handleError(resp, respBody)
		logger.SynthesisFailure(pollyProviderType, voice, synthErr)
		return nil, synthErr
	}

	if len(respBody) == 0 {
		return nil, NewSynthesisError(
			pollyProviderType, "", "response contained no audio", ErrEmptyResponse, false,
		)
	}

	container := audio.Encode(respBody, PollySampleRate)
	logger.SynthesisResult(pollyProviderType, voice, len(container))
	return container, nil
}

// resolveAWSCredential returns the signing credential for one call:
// the config credential when supplied (it must be an AWS credential),
// else the default AWS credential chain for the configured region.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to match the Service interface
func (s *PollyService) resolveAWSCredential(
	ctx context.Context, config SynthesisConfig,
) (credentials.Credential, error) {
	if config.Credential != nil {
		if _, ok := config.Credential.(*credentials.AWSCredential); !ok {
			return nil, fmt.Errorf(
				"polly requires an AWS credential, got %q", config.Credential.Type(),
			)
		}
		return config.Credential, nil
	}

	cred, err := credentials.NewAWSCredential(ctx, s.region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialMissing, err)
	}
	return cred, nil
}

// handleError converts a non-200 response into a SynthesisError. Polly
// puts the exception type in the x-amzn-ErrorType header and a message
// field in the JSON body.
func (s *PollyService) handleError(resp *http.Response, body []byte) error {
	message := NormalizeRemoteError(string(body))

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= pollyServerErrorThreshold

	code := resp.Header.Get("x-amzn-ErrorType")
	if code == "" {
		code = fmt.Sprintf("%d", resp.StatusCode)
	}

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusServiceUnavailable:
		cause = ErrServiceUnavailable
	case http.StatusForbidden:
		cause = fmt.Errorf("signature rejected")
	default:
		cause = ErrRemoteRejected
	}

	return NewSynthesisError(pollyProviderType, code, message, cause, retryable)
}
