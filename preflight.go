// Package preflight verifies that a project's environment, layout and
// toolchain are ready before anyone tries to build it.
package preflight

// Version is the preflight release, overridden at build time via -ldflags.
var Version = "0.3.0"
