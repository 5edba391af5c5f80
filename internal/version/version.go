// Package version holds build information set via ldflags:
//
//	go build -ldflags "-X github.com/doughall/rootipc/internal/version.Version=1.0.0 \
//	                   -X github.com/doughall/rootipc/internal/version.Commit=abc123 \
//	                   -X github.com/doughall/rootipc/internal/version.BuildTime=2026-01-29T12:00:00Z"
package version

var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// BuildTime is the RFC3339 build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description of the build for the named binary.
func Info(binary string) string {
	return binary + " " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}
