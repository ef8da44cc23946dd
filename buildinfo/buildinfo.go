// Package buildinfo exposes version metadata stamped into the binary at
// link time. The values are set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/nomis52/goinit/buildinfo.version=v1.2.0"
package buildinfo

// Properties describes the build of the running binary. It is reported on
// the status API so operators can tell which build answered a request.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the properties stamped into this binary.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}
