// Package version carries build identity stamped into evidence metadata
// and the CLI version output.
package version

// Name is the tool name recorded in evidence bundles.
const Name = "vouch"

// Version is overridden at release time via -ldflags.
var Version = "0.1.0-dev"
