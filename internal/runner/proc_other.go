//go:build !unix

package runner

import "os/exec"

// configureProcess keeps exec's default cancellation, which kills the
// direct child only.
func configureProcess(*exec.Cmd) {}
