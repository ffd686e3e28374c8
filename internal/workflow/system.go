package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var pythonVersionRe = regexp.MustCompile(`Python (\d+)\.(\d+)(?:\.(\d+))?`)

// checkSystem verifies the interpreter version, the required executables
// and the toolchain compilers. Every sub-check runs even after a failure.
func (e *Engine) checkSystem(ctx context.Context, d *Diagnostics) (bool, error) {
	cfg := e.cfg()
	ok := e.checkPython(ctx, d)

	for _, tool := range cfg.RequiredTools() {
		res := e.run(ctx, []string{cfg.LocateTool(), tool})
		if res.Success {
			d.Passf("%s", tool)
			continue
		}
		d.Failf("%s not found", tool)
		ok = false
	}

	for _, line := range cfg.Toolchain() {
		name := line
		if f := strings.Fields(line); len(f) > 0 {
			name = f[0]
		}
		res := e.shell(ctx, line)
		if res.Success {
			d.Passf("%s: %s", name, firstLine(res.StdoutString()))
			continue
		}
		d.Failf("%s not found", name)
		ok = false
	}
	return ok, nil
}

func (e *Engine) checkPython(ctx context.Context, d *Diagnostics) bool {
	py := e.cfg().Python()
	minVer := e.cfg().MinPython()

	res := e.run(ctx, []string{py, "--version"})
	if !res.Success {
		d.Failf("%s not found", py)
		return false
	}

	// Interpreters before 3.4 print the version on stderr.
	m := pythonVersionRe.FindStringSubmatch(res.StdoutString() + "\n" + res.StderrString())
	if m == nil {
		d.Failf("%s: unrecognized version output", py)
		return false
	}

	want := "v" + minVer
	if !semver.IsValid(want) {
		d.Failf("invalid minimum version %q", minVer)
		return false
	}
	if semver.Compare(fmt.Sprintf("v%s.%s", m[1], m[2]), want) < 0 {
		d.Failf("%s (need >= %s)", m[0], minVer)
		return false
	}
	d.Passf("%s", m[0])
	return true
}

// firstLine returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
