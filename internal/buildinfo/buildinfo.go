// Package buildinfo holds the build metadata of the changetree binary.
// cmd/changetree/main.go receives linker-injected values and forwards them
// with Set; anything left at its placeholder is filled from the module's
// embedded VCS stamp by Enrich.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

const (
	unsetCommit  = "none"
	unsetBuiltBy = "unknown"
	shortCommit  = 12
)

// Info describes one build.
type Info struct {
	Version string
	Commit  string
	Date    string
	BuiltBy string
	// Dirty is set when the binary was built from a modified working tree.
	Dirty bool
}

var (
	mu      sync.RWMutex
	current = Info{Version: "dev", Commit: unsetCommit, Date: "unknown", BuiltBy: unsetBuiltBy}

	readBuildInfo = debug.ReadBuildInfo
)

// Set stores the build metadata received from linker-injected variables.
func Set(version, commit, date, builtBy string) {
	mu.Lock()
	defer mu.Unlock()
	current = Info{Version: version, Commit: commit, Date: date, BuiltBy: builtBy}
}

// Current returns a copy of the build metadata.
func Current() Info {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Version returns the build version string.
func Version() string { return Current().Version }

// Commit returns the build commit hash.
func Commit() string { return Current().Commit }

// Enrich fills the commit, the build date and the builder from the VCS
// settings the Go toolchain stamps into the binary. Values passed to Set
// are kept.
func Enrich() {
	info, ok := readBuildInfo()
	if !ok {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if current.Commit == unsetCommit {
				current.Commit = s.Value
			}
		case "vcs.time":
			if current.Date == "unknown" {
				current.Date = s.Value
			}
		case "vcs.modified":
			current.Dirty = current.Dirty || s.Value == "true"
		}
	}
	if current.BuiltBy == unsetBuiltBy {
		current.BuiltBy = info.GoVersion
	}
}

// Summary is the one-line version string shown by --version.
func Summary() string {
	i := Current()
	commit := i.Commit
	if len(commit) > shortCommit {
		commit = commit[:shortCommit]
	}
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit %s, built %s by %s)", i.Version, commit, i.Date, i.BuiltBy)
}
