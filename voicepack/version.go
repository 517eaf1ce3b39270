package voicepack

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// validateSemanticVersion validates that a pack version follows Semantic
// Versioning 2.0.0. A leading 'v' prefix is accepted; the full
// MAJOR.MINOR.PATCH form is required.
//
// Valid examples:
//   - "1.0.0"
//   - "v2.1.3"
//   - "1.0.0-beta.1"
//
// Invalid examples:
//   - "1.0" (missing patch)
//   - "latest" (not a version number)
//   - "" (empty)
func validateSemanticVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version is empty")
	}

	cleanVersion := strings.TrimPrefix(version, "v")

	// StrictNewVersion rejects incomplete forms like "1.0" that
	// NewVersion would silently auto-complete.
	_, err := semver.StrictNewVersion(cleanVersion)
	if err != nil {
		return fmt.Errorf("invalid semantic version: %w", err)
	}

	return nil
}
