// Package version holds build-time version information for the notion-llm
// binary. The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/karthikgk97/notion-llm/internal/version.Version=v0.3.0 \
//	                    -X github.com/karthikgk97/notion-llm/internal/version.Commit=abc1234 \
//	                    -X github.com/karthikgk97/notion-llm/internal/version.BuildDate=2026-01-01"
//
// Local builds fall back to "dev" and "unknown".
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v0.3.0").
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
var BuildDate = "unknown"

// String renders the version line printed by `notion-llm version`.
func String() string {
	return fmt.Sprintf("notion-llm %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// UserAgent identifies the binary to Qdrant and HTTP backends.
func UserAgent() string {
	return "notion-llm/" + Version
}
