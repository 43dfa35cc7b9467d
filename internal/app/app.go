// Package app carries build metadata stamped in with -ldflags.
package app

// Version is the release version.
var Version = "dev"

// BuildCommit is the VCS revision of the build.
var BuildCommit = ""

// String returns "version (commit)" or just the version when no commit is set.
func String() string {
	if BuildCommit == "" {
		return Version
	}
	return Version + " (" + BuildCommit + ")"
}
