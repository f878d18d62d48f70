package compiler

import "github.com/maloquacious/semver"

// Version identifies this build of rvcc. Build carries the toolchain's
// embedded VCS revision (semver.Commit reads runtime/debug.BuildInfo),
// so a binary built from a dirty tree reports that in --version output.
var Version = semver.Version{
	Major: 0,
	Minor: 1,
	Patch: 0,
	Build: semver.Commit(),
}
