/*
Package buildinfo exists to provide a way to set build provenance at
compile-time with ldflags like so:

	LDFLAGS=(
	  "-X 'github.com/lkendrickd/httpapi/buildinfo.Version=${VERSION}'"
	  "-X 'github.com/lkendrickd/httpapi/buildinfo.Commit=$(git rev-parse --short HEAD)'"
	  "-X 'github.com/lkendrickd/httpapi/buildinfo.Branch=$(git rev-parse --abbrev-ref HEAD)'"
	  "-X 'github.com/lkendrickd/httpapi/buildinfo.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)'"
	) && \
	go build -ldflags="${LDFLAGS[*]}" ./cmd/httpapi

Values set here replace the compiled-in defaults, but are still overridden by
the VERSION, COMMIT, BRANCH and BUILD_DATE environment variables and by any
later configuration layer.
*/
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// Placeholders reported when nothing was set at link time. ldflags -X
// overwrites these initializers.
var (
	// Version is the build-time version of the service.
	Version = "0.0.0"
	// Commit is the build-time VCS commit.
	Commit = "00000000"
	// Branch is the build-time VCS branch.
	Branch = "main"
	// BuildDate is the build timestamp, preferably RFC3339.
	BuildDate = "1970-01-01T00:00:00Z"
)

// Runtime is what the Go toolchain stamped into the binary.
type Runtime struct {
	GoVersion   string
	GOOS        string
	GOARCH      string
	VCS         string
	VCSTime     time.Time
	VCSRevision string
	VCSDirty    bool
}

// ReadRuntime collects toolchain and VCS data via [debug.ReadBuildInfo]. The
// zero value is returned when the binary carries no build info.
func ReadRuntime() Runtime {
	var rt Runtime
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return rt
	}
	rt.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "GOOS":
			rt.GOOS = s.Value
		case "GOARCH":
			rt.GOARCH = s.Value
		case "vcs":
			rt.VCS = s.Value
		case "vcs.time":
			if vcsTime, err := time.Parse(time.RFC3339, s.Value); err == nil {
				rt.VCSTime = vcsTime
			}
		case "vcs.revision":
			rt.VCSRevision = s.Value
		case "vcs.modified":
			rt.VCSDirty, _ = strconv.ParseBool(s.Value)
		}
	}
	return rt
}

// String renders the runtime data for --version output.
func (rt Runtime) String() string {
	// take goversion as a proxy for build data being available
	if rt.GoVersion == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("(%s %s/%s)", rt.GoVersion, rt.GOOS, rt.GOARCH))
	// and VCS as a proxy for VCS data being available
	if rt.VCS != "" {
		sb.WriteString(fmt.Sprintf(" %s revision: %s", rt.VCS, rt.VCSRevision))
		if rt.VCSDirty {
			sb.WriteString(" (dirty)")
		}
		sb.WriteString(" " + rt.VCSTime.Format(time.DateTime))
	}
	return sb.String()
}
