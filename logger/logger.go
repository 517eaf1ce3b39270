// Package logger provides structured logging with automatic credential
// redaction.
//
// This package wraps Go's standard log/slog with convenience functions
// for:
//   - Synthesis API call logging (requests, responses, errors)
//   - Automatic API key and sensitive data redaction
//   - Contextual logging with job/unit tracing
//   - Per-module verbosity control
//
// All exported functions use the global DefaultLogger which can be
// configured for different output formats and log levels.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers write. Overridable in tests.
	logOutput io.Writer = os.Stderr

	// customHandler is set via SetLogger and survives Configure calls.
	customHandler slog.Handler
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}

	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// ParseLevel converts a level name to a slog.Level.
// Supported names are "trace", "debug", "info", "warn"/"warning" and
// "error" (case-insensitive). Unknown names fall back to Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output to w. Passing nil resets output to
// stderr. The logger is rebuilt at info level.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	SetLevel(slog.LevelInfo)
}

// SetLogger replaces the global logger with a caller-supplied one.
// Loggers installed here are preserved by later Configure calls.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	customHandler = l.Handler()
	DefaultLogger = l
	slog.SetDefault(l)
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
// Use for errors that affect operation but don't cause complete failure.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// SynthesisCall logs an outgoing synthesis request with structured
// fields for observability.
func SynthesisCall(provider, voice string, textChars int, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"voice", voice,
		"text_chars", textChars,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("🎙️ Synthesis Call", allAttrs...)
}

// SynthesisResult logs a completed synthesis with the produced audio size.
func SynthesisResult(provider, voice string, audioBytes int, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"voice", voice,
		"audio_bytes", audioBytes,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("✅ Synthesis Result", allAttrs...)
}

// SynthesisFailure logs a failed synthesis attempt.
func SynthesisFailure(provider, voice string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"voice", voice,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("❌ Synthesis Failed", allAttrs...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),                        // Google API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),                     // Bearer tokens
		regexp.MustCompile(`([?&]key=)[a-zA-Z0-9_-]{8,}`),                  // key= query params
		regexp.MustCompile(`((?i)x-goog-api-key:\s*)[^\s,"]+`),             // Gemini header form
		regexp.MustCompile(`((?i)ocp-apim-subscription-key:\s*)[^\s,"]+`),  // Azure Speech keys
	}
)

// RedactSensitiveData removes API keys and other sensitive information
// from strings. Matched patterns are replaced with a redacted form that
// preserves a few leading characters for debugging.
//
// This function is safe for concurrent use as it only reads from the
// compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer "):
				return "Bearer [REDACTED]"
			case strings.Contains(match, "key="):
				idx := strings.Index(match, "key=")
				return match[:idx+4] + "[REDACTED]"
			case strings.Contains(match, ":"):
				idx := strings.Index(match, ":")
				return match[:idx+1] + " [REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with
// automatic redaction of the URL, headers and body. No-op when debug
// logging is disabled.
func APIRequest(provider, method, url string, headers map[string]string, body interface{}) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("🔵 API Request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with
// automatic redaction. Errors are logged at error level instead.
// Status codes get emoji indicators: 🟢 (2xx), 🟡 (3xx), 🔴 (4xx/5xx).
func APIResponse(provider string, statusCode int, body string, err error) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 6)
	attrs = append(attrs,
		"provider", provider,
		"status_code", statusCode,
	)

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		Error("🔴 API Response Error", attrs...)
		return
	}

	var emoji string
	switch {
	case statusCode >= 200 && statusCode < 300:
		emoji = "🟢"
	case statusCode >= 400:
		emoji = "🔴"
	default:
		emoji = "🟡"
	}

	if body != "" {
		var jsonObj interface{}
		if json.Unmarshal([]byte(body), &jsonObj) == nil {
			prettyJSON, _ := json.MarshalIndent(jsonObj, "", "  ")
			attrs = append(attrs, "body", RedactSensitiveData(string(prettyJSON)))
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(body))
		}
	}

	Debug(emoji+" API Response", attrs...)
}
