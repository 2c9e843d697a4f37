// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/aiorch/internal/version.Version=v1.2.3
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build for humans: "v1.2.3 (commit: abc123, built: 2026-10-19)".
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}

// UserAgent identifies aiorch to model providers.
func UserAgent() string {
	return "aiorch/" + Version
}
