// Package version reports the sitecheck build version.
package version

import (
	"runtime/debug"
	"sync"
)

const (
	// Name is the program name used in logs, metrics and User-Agent headers.
	Name       = "sitecheck"
	importPath = "github.com/ipshipyard/sitecheck"
)

// Version returns the module version from build info, or "(devel)" /
// "unknown" when it is not recorded.
var Version = sync.OnceValue(func() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range bi.Deps {
		if dep.Path == importPath {
			return dep.Version
		}
	}
	if bi.Main.Path == importPath && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "unknown"
})

// UserAgent identifies sitecheck to the sites and feeds it talks to.
func UserAgent() string {
	return Name + "/" + Version()
}
