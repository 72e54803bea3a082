package version

var (
	// Version is set at build time with -ldflags.
	Version = "v0.0.0"
	// GitCommit is set at build time with -ldflags.
	GitCommit = "unknown"
)
