package workflow

import (
	"context"
	"strings"

	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// buildMaxOutput is the minimum per-stream cap for the build check. Compiler
// errors for a whole workspace can run well past the normal cap.
const buildMaxOutput = 16 << 20

// checkBuild runs the workspace-wide build check once. On failure the
// whole error stream is reported so it need not be re-run to diagnose.
func (e *Engine) checkBuild(ctx context.Context, d *Diagnostics) (bool, error) {
	cmd := e.cfg().BuildCommand()
	limit := max(buildMaxOutput, e.cfg().MaxOutputBytes())
	res := e.shell(ctx, cmd, runner.WithMaxOutput(limit))
	if res.Success {
		d.Passf("%s passed", cmd)
		return true, nil
	}

	d.Failf("%s failed", cmd)
	out, raw := res.StderrString(), res.Stderr
	if out == "" {
		out, raw = res.StdoutString(), res.Stdout
	}
	for _, line := range strings.Split(out, "\n") {
		d.Detail(report.Info, "%s", strings.TrimRight(line, "\r"))
	}
	if len(raw) >= limit {
		d.Detail(report.Warn, "output exceeded %d bytes and was cut", limit)
	}
	return false, nil
}
