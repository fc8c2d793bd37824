// Package version exposes build metadata set with -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X lingogate/internal/version.Version=v1.2.3 -X lingogate/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("lingogate %s (commit %s, built %s)", Version, Commit, Date)
}
