package version

import (
	"fmt"
	"runtime/debug"
)

// Version contains the application version information.
// Set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/repobuilder/internal/version.Version=v0.3.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version. When ldflags were not
// applied, the module version and VCS revision recorded by the toolchain are used.
func String() string {
	v, commit := Version, GitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		if commit == "unknown" {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("repobuilder %s (commit %s, built %s)", v, commit, BuildTime)
}
