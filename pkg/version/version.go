package version

// Build information, injected at link time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)
