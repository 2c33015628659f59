// ABOUTME: Build and product identification
// ABOUTME: Values are overridden at link time with -ldflags "-X ..."
package version

import "fmt"

// Product is the name announced over mDNS and shown in the panel
const Product = "MicReceiver"

var (
	// Version is the release tag, or "dev" for local builds
	Version = "dev"

	// GitCommit is the short commit hash the binary was built from
	GitCommit = ""

	// BuildType distinguishes release and development builds
	BuildType = ""
)

// String renders a one-line version description
func String() string {
	s := fmt.Sprintf("%s %s", Product, Version)
	if GitCommit != "" {
		s += " (" + GitCommit + ")"
	}
	if BuildType != "" {
		s += " " + BuildType
	}
	return s
}
