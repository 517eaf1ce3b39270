package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Common synthesis errors.
var (
	// ErrCredentialMissing is returned when no credential is supplied
	// and no ambient default exists.
	ErrCredentialMissing = errors.New("no synthesis credential available")

	// ErrRemoteRejected is returned when the provider rejects the
	// synthesis request.
	ErrRemoteRejected = errors.New("synthesis request rejected")

	// ErrEmptyResponse is returned when the provider response carries
	// no audio payload.
	ErrEmptyResponse = errors.New("synthesis response contained no audio")

	// ErrEmptyText is returned when attempting to synthesize empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrRateLimited is returned when API rate limits are exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServiceUnavailable is returned when the synthesis service is unavailable.
	ErrServiceUnavailable = errors.New("synthesis service unavailable")
)

// SynthesisError provides detailed error information from synthesis providers.
type SynthesisError struct {
	// Provider is the synthesis provider that returned the error.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is the error message.
	Message string

	// Cause is the underlying error (if any).
	Cause error

	// Retryable indicates if the error is transient and retry may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(provider, code, message string, cause error, retryable bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Retryable reports whether err is worth retrying. Errors that don't
// carry an explicit retry hint are treated as transient.
func Retryable(err error) bool {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return synthErr.Retryable
	}
	return true
}

// remoteErrorEnvelope mirrors the error shapes providers embed in
// failure payloads. Code is numeric for Google-style envelopes and a
// string for others, so it stays untyped.
type remoteErrorEnvelope struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
	Message string `json:"message"`
}

// NormalizeRemoteError reduces a raw provider failure string to
// user-presentable text. Providers wrap errors in differing JSON
// envelopes; when the raw string carries an embedded JSON object the
// nested error.message (plus error.code when present) wins, then a
// top-level message field, then the raw string unchanged.
func NormalizeRemoteError(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return raw
	}

	var env remoteErrorEnvelope
	if err := json.Unmarshal([]byte(raw[start:]), &env); err != nil {
		return raw
	}

	if env.Error.Message != "" {
		if env.Error.Code != nil {
			return fmt.Sprintf("%s (code %v)", env.Error.Message, env.Error.Code)
		}
		return env.Error.Message
	}
	if env.Message != "" {
		return env.Message
	}
	return raw
}
