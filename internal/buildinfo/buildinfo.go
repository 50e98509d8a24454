// Package buildinfo identifies the running nucleus build.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

// Version and Commit may be stamped with -ldflags -X; otherwise they
// are filled from the module's embedded VCS metadata.
var (
	Version = ""
	Commit  = ""
)

var fill sync.Once

func load() {
	if Version != "" && Commit != "" {
		return
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}
	if Commit != "" {
		return
	}
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(Commit) > 12 {
		Commit = Commit[:12]
	}
	if Commit != "" && dirty {
		Commit += "+dirty"
	}
}

// Short is the tag shown in the window title and boot banner.
func Short() string {
	fill.Do(load)
	switch {
	case Version != "":
		return Version
	case Commit != "":
		return Commit
	}
	return "dev"
}
