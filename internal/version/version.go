// Package version holds build metadata set via -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X househunt/internal/version.Version=v1.2.0 -X househunt/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("househunt %s (commit %s, built %s)", Version, Commit, Date)
}
