// Package version holds the release of helisync and of its wire protocol.
package version

import "fmt"

// Flag marks development builds. Release builds leave it empty.
const Flag = ""

// Protocol is the revision of the session protocol spoken between nodes. It
// changes whenever a command or a record encoding changes.
const Protocol = 1

var (
	// Version is the full version string
	Version = "0.3.0"

	// GitCommit is set with --ldflags "-X github.com/campnet/helisync/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}

// Full describes the build and the protocol revision.
func Full() string {
	return fmt.Sprintf("helisync %s (protocol %d)", Version, Protocol)
}
