package r2span

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// Version is set at build time via `-ldflags "-X 'github.com/telecore/r2span/src.Version=X'"`.
var Version string

func getBuildSettingOrDefault(bi *debug.BuildInfo, key, defaultValue string) string {
	for _, bs := range bi.Settings {
		if bs.Key == key {
			return bs.Value
		}
	}
	return defaultValue
}

// VersionString renders the process-wide `version` admin command's
// response: module version, VCS revision, build time.
func VersionString() string {
	buildInfo, _ := debug.ReadBuildInfo()

	buildTimeStr := getBuildSettingOrDefault(buildInfo, "vcs.time", "UNKNOWN")
	buildCommit := getBuildSettingOrDefault(buildInfo, "vcs.revision", "UNKNOWN")
	dirtyStr := getBuildSettingOrDefault(buildInfo, "vcs.modified", "false")
	if dirty, err := strconv.ParseBool(dirtyStr); err == nil && dirty {
		buildCommit += "-dirty"
	}

	version := Version
	if version == "" {
		version = "unknown"
	}

	return fmt.Sprintf("r2span %s (revision %s, built at %s)", version, buildCommit, buildTimeStr)
}
