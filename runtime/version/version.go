// Package version reports the build version of llmvc. The variables can be
// set at build time:
//
//	go build -ldflags "-X github.com/wlyh514/discord-llmvc-bot/runtime/version.version=1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	devVersion     = "dev"
	shortCommitLen = 7
	vcsRevisionKey = "vcs.revision"
	vcsModifiedKey = "vcs.modified"
)

// Set with -ldflags.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the version string, falling back to the module version
// recorded in the build info.
func GetVersion() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func commit() string {
	if gitCommit != "" {
		return gitCommit
	}
	rev := buildSetting(vcsRevisionKey)
	return rev[:min(shortCommitLen, len(rev))]
}

// GetVersionInfo returns the multi-line text printed by `llmvc version`.
func GetVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "llmvc version %s", GetVersion())
	if c := commit(); c != "" {
		fmt.Fprintf(&b, "\ncommit: %s", c)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// GetBuildInfo returns version details as slog key-value pairs.
func GetBuildInfo() []any {
	attrs := []any{"version", GetVersion()}
	if c := commit(); c != "" {
		attrs = append(attrs, "commit", c)
	}
	if gitCommit == "" && buildSetting(vcsModifiedKey) == "true" {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}
