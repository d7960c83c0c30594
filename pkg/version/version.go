// Package version carries build identity stamped in at link time.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// GitHash is the Git hash the binary was built from.
	GitHash = "<unknown>"
)

// String returns the full version line printed by `rbconv version`.
func String() string {
	return fmt.Sprintf("rbconv %s (%s)", Version, GitHash)
}
