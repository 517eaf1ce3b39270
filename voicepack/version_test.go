package voicepack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSemanticVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"valid MAJOR.MINOR.PATCH", "1.0.0", false},
		{"valid with v prefix", "v2.1.3", false},
		{"valid pre-release", "1.0.0-beta.1", false},
		{"valid build metadata", "1.0.0+20260815", false},
		{"valid zero version", "0.0.0", false},
		{"empty version", "", true},
		{"missing patch", "1.0", true},
		{"major only", "v1", true},
		{"latest tag", "latest", true},
		{"trailing characters", "1.0.0abc", true},
		{"dashes as separators", "1-0-0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSemanticVersion(tt.version)

			if tt.wantErr {
				assert.Error(t, err, "expected error for version: %s", tt.version)
			} else {
				assert.NoError(t, err, "expected no error for version: %s", tt.version)
			}
		})
	}
}
