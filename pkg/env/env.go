// Package env exposes build information of the running binary.
package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

const unset = "unset"

// Version may be overridden at link time (-ldflags "-X .../pkg/env.Version=...").
// When it is not, the VCS revision recorded by the Go toolchain is used.
var Version = unset

func init() {
	if Version == unset {
		if v := versioninfo.Short(); v != "" && v != "unknown" {
			Version = v
		}
	}
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", Version) // nolint:errcheck
}

// IsProd reports whether the binary carries release version information.
func IsProd() bool {
	return Version != unset && Version != "devel"
}
