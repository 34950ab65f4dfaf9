// Package buildinfo carries version metadata stamped at link time:
//
//	go build -ldflags "-X github.com/m3rciful/timebot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/timebot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/timebot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC3339, empty for local builds.
	Date = ""
)

// String returns "version (commit)" for --version output.
func String() string {
	return Version + " (" + Commit + ")"
}
