// Package version carries build metadata stamped in via ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Name identifies the bridge to peers: NATS connection names, the journal
// identifier and the embedded NATS server name all derive from it.
const Name = "psmove-bridge"

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the application version string.
func String() string {
	return Version
}

// ClientName names a connection opened by one part of the bridge, e.g.
// "psmove-bridge-outlets/1.2.0". Short git commits are appended to dev builds.
func ClientName(role string) string {
	name := Name
	if role != "" {
		name += "-" + role
	}
	v := Version
	if v == "dev" && GitCommit != "unknown" {
		v = fmt.Sprintf("dev+%s", shortCommit(GitCommit))
	}
	return name + "/" + v
}

func shortCommit(commit string) string {
	commit = strings.TrimSpace(commit)
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
