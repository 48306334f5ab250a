package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/routetap/routetap/pkg/version.Version=v1.0.0 \
//	  -X github.com/routetap/routetap/pkg/version.GitCommit=abc1234 \
//	  -X github.com/routetap/routetap/pkg/version.BuildDate=2026-07-31T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a single human-readable line for the `routetap version` command.
func Info() string {
	return fmt.Sprintf("routetap %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
