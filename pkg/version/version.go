package version

// Set with -ldflags "-X github.com/mcrlens/lensctl/pkg/version.Version=..." at build time.
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
)
