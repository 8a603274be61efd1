package version

// Version is stamped into every state snapshot.
// It is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-guard/internal/version.Version=1.2.3"
// The value "main" indicates a development build.
var Version = "v0.4.0"

// GetVersion returns the version of the running binary.
func GetVersion() string {
	return Version
}
