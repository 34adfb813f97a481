// Package version exposes the rbridge build version.
package version

// version is stamped by release builds via -ldflags; plain source
// builds report dev.
var version = "dev" //nolint:gochecknoglobals // ldflags target must be package-level

// String returns the version stamped into this binary.
func String() string {
	return version
}
