package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

const (
	unsetCommit    = "none"
	shortCommitLen = 7
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and toolchain.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, go: %s",
		Version, commit(debug.ReadBuildInfo), BuildTime, runtime.Version())
}

// commit returns the injected commit or, for `go install` builds, the VCS revision
// recorded by the toolchain.
func commit(readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if Commit != unsetCommit {
		return Commit
	}

	info, ok := readBuildInfo()
	if !ok {
		return Commit
	}

	for _, setting := range info.Settings {
		if setting.Key != "vcs.revision" || setting.Value == "" {
			continue
		}

		if len(setting.Value) > shortCommitLen {
			return setting.Value[:shortCommitLen]
		}

		return setting.Value
	}

	return Commit
}
