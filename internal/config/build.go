package config

import "fmt"

// Set at link time:
//
//	go build -ldflags "-X solarscan/internal/config.version=1.2.3 \
//	    -X solarscan/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X solarscan/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the version banner used by the root endpoint and the CLI.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", b.Version, b.Commit, b.BuildTime)
}
