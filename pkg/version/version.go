// Package version derives build identity from the metadata Go embeds in
// every binary, for startup logs and the audit context's environment
// attribution. Go 1.18+ records VCS info via runtime/debug.BuildInfo, so
// no -ldflags wiring is needed.
package version

import (
	"runtime/debug"
	"sync"
)

// Platform is the platform name prefixed to every per-service version
// string.
const Platform = "aluskort"

// Info is the resolved build identity of the running binary.
type Info struct {
	Commit    string // short VCS revision, "dev" outside a git build
	Dirty     bool   // uncommitted changes at build time
	GoVersion string
}

var (
	resolveOnce sync.Once
	resolved    Info
)

// Get resolves build info once and returns it; every later call is a
// cheap copy.
func Get() Info {
	resolveOnce.Do(func() {
		resolved = Info{Commit: "dev"}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		resolved.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolved.Commit = shortRev(s.Value)
				}
			case "vcs.modified":
				resolved.Dirty = s.Value == "true"
			}
		}
	})
	return resolved
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// ServiceString returns "aluskort-<service>/<commit>[+dirty]", the form
// each binary logs at startup and stamps into outbound user-agent
// headers.
func ServiceString(service string) string {
	info := Get()
	v := Platform + "-" + service + "/" + info.Commit
	if info.Dirty {
		v += "+dirty"
	}
	return v
}
