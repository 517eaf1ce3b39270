package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// tokenRefreshBuffer is how long before expiry a cached token is
// already treated as stale.
const tokenRefreshBuffer = 5 * time.Minute

// cognitiveServicesScope is the Azure AD scope covering Speech
// synthesis requests.
const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// AzureSpeechEndpoint returns the Azure Speech synthesis endpoint for a region.
func AzureSpeechEndpoint(region string) string {
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
}

// AzureCredential authenticates Speech requests with Azure AD bearer
// tokens. Tokens are cached and refreshed shortly before they expire.
type AzureCredential struct {
	endpoint string
	cred     azcore.TokenCredential
	cache    bearerCache
}

// NewAzureCredential creates a credential backed by the default Azure
// credential chain: Managed Identity, Azure CLI, environment variables.
func NewAzureCredential(ctx context.Context, endpoint string) (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return &AzureCredential{endpoint: endpoint, cred: cred}, nil
}

// NewAzureCredentialWithClientSecret creates a credential from an app
// registration's client secret.
func NewAzureCredentialWithClientSecret(
	ctx context.Context, endpoint, tenantID, clientID, clientSecret string,
) (*AzureCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return &AzureCredential{endpoint: endpoint, cred: cred}, nil
}

// NewAzureCredentialWithManagedIdentity creates a credential bound to a
// Managed Identity. A nil or empty clientID selects the system-assigned
// identity.
func NewAzureCredentialWithManagedIdentity(
	ctx context.Context, endpoint string, clientID *string,
) (*AzureCredential, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if clientID != nil && *clientID != "" {
		opts.ID = azidentity.ClientID(*clientID)
	}

	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure managed identity credential: %w", err)
	}
	return &AzureCredential{endpoint: endpoint, cred: cred}, nil
}

// Apply sets the Authorization header from the cached or refreshed
// Azure AD token.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, ok := c.cache.get()
	if !ok {
		refreshed, err := c.refresh(ctx)
		if err != nil {
			return fmt.Errorf("failed to get Azure token: %w", err)
		}
		token = refreshed
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns "azure".
func (c *AzureCredential) Type() string {
	return "azure"
}

// Endpoint returns the configured Azure endpoint.
func (c *AzureCredential) Endpoint() string {
	return c.endpoint
}

// refresh requests a fresh token for the Cognitive Services scope and
// caches it.
func (c *AzureCredential) refresh(ctx context.Context) (string, error) {
	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveServicesScope},
	})
	if err != nil {
		return "", err
	}
	c.cache.put(token.Token, token.ExpiresOn)
	return token.Token, nil
}

// bearerCache caches one bearer token until tokenRefreshBuffer before
// its expiry. Safe for concurrent use.
type bearerCache struct {
	mu      sync.RWMutex
	token   string
	expires time.Time
}

func (b *bearerCache) get() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == "" || !b.expires.After(time.Now().Add(tokenRefreshBuffer)) {
		return "", false
	}
	return b.token, true
}

func (b *bearerCache) put(token string, expires time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.expires = expires
}
