package credentials

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// cloudPlatformScope covers Cloud Text-to-Speech calls.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// CloudTTSEndpoint returns the Google Cloud Text-to-Speech endpoint URL.
func CloudTTSEndpoint() string {
	return "https://texttospeech.googleapis.com/v1/text:synthesize"
}

// GCPCredential authenticates requests with Google Cloud OAuth2 bearer
// tokens. The token source reuses tokens until expiry, so Apply only
// hits the metadata or token endpoint when a refresh is due.
type GCPCredential struct {
	project     string
	region      string
	tokenSource oauth2.TokenSource
}

// NewGCPCredential creates a credential from Application Default
// Credentials: Workload Identity, service account keys, or gcloud auth.
func NewGCPCredential(ctx context.Context, project, region string) (*GCPCredential, error) {
	tokenSource, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create token source: %w", err)
	}

	return &GCPCredential{
		project:     project,
		region:      region,
		tokenSource: oauth2.ReuseTokenSource(nil, tokenSource),
	}, nil
}

// NewGCPCredentialWithServiceAccount creates a credential from a
// service account key file.
func NewGCPCredentialWithServiceAccount(ctx context.Context, project, region, keyFile string) (*GCPCredential, error) {
	data, err := readCredentialFile(keyFile, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	config, err := google.JWTConfigFromJSON([]byte(data), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return &GCPCredential{
		project:     project,
		region:      region,
		tokenSource: oauth2.ReuseTokenSource(nil, config.TokenSource(ctx)),
	}, nil
}

// Apply sets the Authorization header from the token source.
func (c *GCPCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("failed to get GCP token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// Type returns "gcp".
func (c *GCPCredential) Type() string {
	return "gcp"
}

// Project returns the configured GCP project ID.
func (c *GCPCredential) Project() string {
	return c.project
}

// Region returns the configured GCP region.
func (c *GCPCredential) Region() string {
	return c.region
}
