// Package version holds the build version, overridden at link time via
// -ldflags "-X github.com/heraldhq/herald/internal/version.version=...".
package version

var version = "development"

func Version() string {
	return version
}
