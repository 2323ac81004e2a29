package version

import "fmt"

// Version is overridden at build time with -ldflags "-X gochatpresenter/internal/version.Version=...".
var Version = "0.3.0-dev"

// Commit is the short VCS revision, set at build time.
var Commit = ""

// String returns the human readable version.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
