// Package version reports the gpudb-sync build stamped in at link time with
// -ldflags "-X github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/version.version=...".
package version

import "strings"

// These variables are set via ldflags during build
//
//nolint:gochecknoglobals // These are intentionally global for ldflags injection
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

// Version returns the release version.
func Version() string {
	return version
}

// Commit returns the source revision, or "" for local builds.
func Commit() string {
	return commit
}

// String returns the version with whatever build metadata is known.
func String() string {
	var meta []string

	if commit != "" {
		meta = append(meta, "commit "+commit)
	}

	if buildDate != "" {
		meta = append(meta, "built "+buildDate)
	}

	if len(meta) == 0 {
		return version
	}

	return version + " (" + strings.Join(meta, ", ") + ")"
}
