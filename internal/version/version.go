package version

// Stamped via -ldflags at release build time; the defaults identify a
// from-source development build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
