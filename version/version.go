// Package version provides version information for the NarrateKit engine.
// Version variables can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/CadenzaLabs/NarrateKit/engine/version.version=1.0.0"
package version

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

const (
	// devVersion is the default version when not set via ldflags
	devVersion = "dev"
	// shortCommitLen is the length of the short commit hash
	shortCommitLen = 7
	// vcsRevisionKey is the build info key for git commit
	vcsRevisionKey = "vcs.revision"
	// vcsModifiedKey is the build info key for dirty state
	vcsModifiedKey = "vcs.modified"
	// userAgentProduct is the product token synthesis adapters send upstream
	userAgentProduct = "narratekit-engine"
)

// Build-time variables - can be overridden with -ldflags
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the current version string.
// Falls back to build info from go modules if version is "dev".
func GetVersion() string {
	if version != devVersion {
		return version
	}

	// Try to get version from build info (go modules)
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}

	return devVersion
}

// UserAgent returns the User-Agent string synthesis adapters send on
// outbound requests, e.g. "narratekit-engine/v1.2.0".
func UserAgent() string {
	v := GetVersion()
	if v != devVersion && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return userAgentProduct + "/" + v
}

// BuildInfo is a structured snapshot of the build identity.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Info returns the build identity as a struct, suitable for embedding in
// status payloads. Missing ldflags values fall back to module build info.
func Info() BuildInfo {
	commit := gitCommit
	if commit == "" {
		commit = getCommitFromBuildInfo()
	}

	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: commit,
		BuildDate: buildDate,
		Dirty:     gitCommit == "" && isDirtyFromBuildInfo(),
	}
}

// getCommitFromBuildInfo extracts the git commit hash from build info.
func getCommitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, setting := range info.Settings {
		if setting.Key == vcsRevisionKey && setting.Value != "" {
			return setting.Value[:min(shortCommitLen, len(setting.Value))]
		}
	}
	return ""
}

// isDirtyFromBuildInfo checks if the build has uncommitted changes.
func isDirtyFromBuildInfo() bool {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return false
	}

	for _, setting := range info.Settings {
		if setting.Key == vcsModifiedKey && setting.Value == "true" {
			return true
		}
	}
	return false
}

// GetVersionInfo returns detailed version information as a printable block.
func GetVersionInfo() string {
	var b strings.Builder

	info := Info()
	fmt.Fprintf(&b, "NarrateKit engine version %s", info.Version)

	if info.GitCommit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", info.GitCommit)
	}

	if info.BuildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", info.BuildDate)
	}

	return b.String()
}

// GetBuildInfo returns version details as structured slog attributes.
// This is useful for including version info in log messages.
func GetBuildInfo() []any {
	info := Info()

	attrs := []any{
		"version", info.Version,
	}

	if info.GitCommit != "" {
		attrs = append(attrs, "commit", info.GitCommit)
	}

	if info.Dirty {
		attrs = append(attrs, "dirty", true)
	}

	if info.BuildDate != "" {
		attrs = append(attrs, "built", info.BuildDate)
	}

	return attrs
}

// LogStartup logs version information at debug level.
// This is called by the logger package after initialization.
func LogStartup() {
	// Only log at debug level to avoid noise in production
	level := slog.LevelDebug

	// Check if debug logging is enabled
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug", "trace":
			// Continue to log
		default:
			// Skip logging if not debug/trace
			return
		}
	} else {
		// Default is info, so skip debug logging
		return
	}

	attrs := GetBuildInfo()
	slog.Log(context.Background(), level, "NarrateKit engine starting", attrs...)
}
