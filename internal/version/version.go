// Package version carries build metadata injected with -ldflags.
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = ""
	// BuildDate is the build timestamp.
	BuildDate = ""
)
