package credentials

import (
	"context"
	"fmt"
	"strings"
)

// resolvePlatformCredential creates credentials for cloud platforms.
func resolvePlatformCredential(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	switch strings.ToLower(cfg.PlatformSpec.Type) {
	case platformPolly:
		return NewAWSCredential(ctx, cfg.PlatformSpec.Region)
	case platformGCP:
		return NewGCPCredential(ctx, cfg.PlatformSpec.Project, cfg.PlatformSpec.Region)
	case platformAzure:
		return NewAzureCredential(ctx, cfg.PlatformSpec.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported platform type: %s", cfg.PlatformSpec.Type)
	}
}
