package version

// Set at build time via -ldflags "-X github.com/mykhaliev/tool-bench/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
