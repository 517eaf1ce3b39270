package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Platform type constants.
const (
	platformPolly = "polly"
	platformGCP   = "gcp"
	platformAzure = "azure"
)

// CredentialSpec defines how to obtain an API key for a provider.
// Resolution order: api_key → credential_file → credential_env → default env vars.
type CredentialSpec struct {
	// APIKey is an explicit API key value (not recommended for production).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// CredentialFile is a path to a file containing the API key.
	CredentialFile string `json:"credential_file,omitempty" yaml:"credential_file,omitempty"`
	// CredentialEnv is the name of an environment variable containing the API key.
	CredentialEnv string `json:"credential_env,omitempty" yaml:"credential_env,omitempty"`
}

// PlatformSpec defines platform-specific settings for cloud-hosted synthesis.
// Platforms are hosting layers (polly, gcp, azure) that determine auth and
// endpoints, while provider type determines request/response handling.
type PlatformSpec struct {
	// Type is the platform type: "polly", "gcp", or "azure".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Region is the cloud region (e.g., "us-east-1", "eastus").
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Project is the cloud project ID (required for GCP).
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
	// Endpoint is an optional custom endpoint URL.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// DefaultEnvVars maps provider types to their default environment variable names.
var DefaultEnvVars = map[string][]string{
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"azure":  {"AZURE_SPEECH_KEY"},
	"custom": {"CUSTOM_TTS_API_KEY"},
}

// ProviderHeaderConfig maps provider types to their API key placement.
var ProviderHeaderConfig = map[string]struct {
	HeaderName string
	Prefix     string
	QueryParam string
}{
	"gemini": {QueryParam: "key"}, // Gemini uses a query param, not a header
	"azure":  {HeaderName: "Ocp-Apim-Subscription-Key"},
	"custom": {HeaderName: "Authorization", Prefix: "Bearer "},
}

// ResolverConfig holds configuration for credential resolution.
type ResolverConfig struct {
	// ProviderType is the provider type (gemini, polly, azure, custom).
	ProviderType string

	// CredentialSpec is the explicit credential configuration from the provider.
	CredentialSpec *CredentialSpec

	// PlatformSpec is the platform configuration (polly, gcp, azure).
	PlatformSpec *PlatformSpec

	// ConfigDir is the base directory for resolving relative credential file paths.
	ConfigDir string
}

// Resolve resolves credentials according to the chain:
// 1. api_key (explicit value)
// 2. credential_file (read from file)
// 3. credential_env (read from environment variable)
// 4. default env vars for provider type
//
// For platform configurations (polly, gcp, azure), it returns the appropriate
// cloud credential type that uses the respective SDK's default credential chain.
func Resolve(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	// Handle platform-specific credentials
	if cfg.PlatformSpec != nil && cfg.PlatformSpec.Type != "" {
		return resolvePlatformCredential(ctx, cfg)
	}

	// Handle API key credentials
	return resolveAPIKeyCredential(cfg)
}

// resolveAPIKeyCredential resolves API key credentials from various sources.
func resolveAPIKeyCredential(cfg ResolverConfig) (Credential, error) {
	apiKey, err := findAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	// If no API key found, return a NoOp credential (some providers may not need auth)
	if apiKey == "" {
		return &NoOpCredential{}, nil
	}

	return createAPIKeyCredential(apiKey, cfg.ProviderType), nil
}

// findAPIKey searches for an API key in the resolution chain.
func findAPIKey(cfg ResolverConfig) (string, error) {
	// 1. Try explicit api_key
	if cfg.CredentialSpec != nil && cfg.CredentialSpec.APIKey != "" {
		return cfg.CredentialSpec.APIKey, nil
	}

	// 2. Try credential_file
	if cfg.CredentialSpec != nil && cfg.CredentialSpec.CredentialFile != "" {
		key, err := readCredentialFile(cfg.CredentialSpec.CredentialFile, cfg.ConfigDir)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return key, nil
	}

	// 3. Try credential_env
	if cfg.CredentialSpec != nil && cfg.CredentialSpec.CredentialEnv != "" {
		key := os.Getenv(cfg.CredentialSpec.CredentialEnv)
		if key == "" {
			return "", fmt.Errorf("environment variable %s is not set", cfg.CredentialSpec.CredentialEnv)
		}
		return key, nil
	}

	// 4. Try default env vars for provider type
	return findDefaultEnvKey(cfg.ProviderType), nil
}

// findDefaultEnvKey looks for API keys in default environment variables.
func findDefaultEnvKey(providerType string) string {
	defaultVars, ok := DefaultEnvVars[providerType]
	if !ok {
		return ""
	}
	for _, envVar := range defaultVars {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	return ""
}

// createAPIKeyCredential creates an API key credential with provider-specific config.
func createAPIKeyCredential(apiKey, providerType string) *APIKeyCredential {
	headerCfg, ok := ProviderHeaderConfig[providerType]
	if !ok {
		// Default to Bearer token in Authorization header
		headerCfg = struct {
			HeaderName string
			Prefix     string
			QueryParam string
		}{HeaderName: "Authorization", Prefix: "Bearer "}
	}

	if headerCfg.QueryParam != "" {
		return NewAPIKeyCredential(apiKey, WithQueryParam(headerCfg.QueryParam))
	}

	opts := []APIKeyOption{WithHeaderName(headerCfg.HeaderName), WithPrefix(headerCfg.Prefix)}
	return NewAPIKeyCredential(apiKey, opts...)
}

// readCredentialFile reads an API key from a file.
func readCredentialFile(path, configDir string) (string, error) {
	// Handle relative paths
	if !strings.HasPrefix(path, "/") && configDir != "" {
		path = configDir + "/" + path
	}

	//nolint:gosec // G304: File path is from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	// Trim whitespace and newlines
	return strings.TrimSpace(string(data)), nil
}

// MustResolve resolves credentials and panics on error.
// Use this only in initialization code where errors are unrecoverable.
func MustResolve(ctx context.Context, cfg ResolverConfig) Credential {
	cred, err := Resolve(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve credentials: %v", err))
	}
	return cred
}
