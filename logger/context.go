package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyJobID identifies the narration job being processed.
	ContextKeyJobID contextKey = "job_id"

	// ContextKeyUnitID identifies the narration unit being synthesized.
	ContextKeyUnitID contextKey = "unit_id"

	// ContextKeyRunID identifies a single scheduler run over a job.
	ContextKeyRunID contextKey = "run_id"

	// ContextKeyProvider identifies the synthesis provider (e.g., "gemini", "polly").
	ContextKeyProvider contextKey = "provider"

	// ContextKeyVoice identifies the voice being used.
	ContextKeyVoice contextKey = "voice"

	// ContextKeyStage identifies the processing stage (e.g., "chunk", "synthesize", "merge").
	ContextKeyStage contextKey = "stage"

	// ContextKeyRequestID identifies the individual request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeyJobID,
	ContextKeyUnitID,
	ContextKeyRunID,
	ContextKeyProvider,
	ContextKeyVoice,
	ContextKeyStage,
	ContextKeyRequestID,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithJobID returns a new context with the job ID set.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// WithUnitID returns a new context with the unit ID set.
func WithUnitID(ctx context.Context, unitID string) context.Context {
	return context.WithValue(ctx, ContextKeyUnitID, unitID)
}

// WithRunID returns a new context with the run ID set.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithVoice returns a new context with the voice name set.
func WithVoice(ctx context.Context, voice string) context.Context {
	return context.WithValue(ctx, ContextKeyVoice, voice)
}

// WithStage returns a new context with the processing stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// This is a convenience function for setting multiple fields in one call.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.JobID != "" {
		ctx = WithJobID(ctx, fields.JobID)
	}
	if fields.UnitID != "" {
		ctx = WithUnitID(ctx, fields.UnitID)
	}
	if fields.RunID != "" {
		ctx = WithRunID(ctx, fields.RunID)
	}
	if fields.Provider != "" {
		ctx = WithProvider(ctx, fields.Provider)
	}
	if fields.Voice != "" {
		ctx = WithVoice(ctx, fields.Voice)
	}
	if fields.Stage != "" {
		ctx = WithStage(ctx, fields.Stage)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	JobID         string
	UnitID        string
	RunID         string
	Provider      string
	Voice         string
	Stage         string
	RequestID     string
	CorrelationID string
	Environment   string
}

// ExtractLoggingFields extracts all logging fields from a context.
// Returns a LoggingFields struct with all values found in the context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyJobID); v != nil {
		fields.JobID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyUnitID); v != nil {
		fields.UnitID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRunID); v != nil {
		fields.RunID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyProvider); v != nil {
		fields.Provider, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyVoice); v != nil {
		fields.Voice, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStage); v != nil {
		fields.Stage, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
