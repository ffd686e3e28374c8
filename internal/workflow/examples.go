package workflow

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// compileScript compiles the source read from stdin without executing it.
// argv[1] names the file in any error.
const compileScript = "import sys; compile(sys.stdin.read(), sys.argv[1], 'exec')"

var (
	errorLineRe = regexp.MustCompile(`(?m)^(\w+(?:Error|Exception|Warning)): (.*)$`)
	fileLineRe  = regexp.MustCompile(`File "[^"]*", line (\d+)`)
)

// checkExamples syntax-checks each example script. A missing or broken
// example fails only its own entry; the rest are still checked.
func (e *Engine) checkExamples(ctx context.Context, d *Diagnostics) (bool, error) {
	py := e.cfg().Python()
	ok := true

	for _, rel := range e.cfg().ExampleFiles() {
		src, err := os.ReadFile(filepath.Join(e.Workspace, rel))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				d.Failf("%s (missing)", rel)
			} else {
				d.Failf("%s (unreadable: %v)", rel, err)
			}
			ok = false
			continue
		}
		d.Passf("%s", rel)

		res := e.run(ctx, []string{py, "-c", compileScript, rel}, runner.WithStdin(bytes.NewReader(src)))
		if res.Success {
			d.Detail(report.Pass, "syntax OK")
			continue
		}
		d.Detail(report.Fail, "%s", describeSyntaxError(res))
		ok = false
	}
	return ok, nil
}

// describeSyntaxError reduces an interpreter traceback to
// "SyntaxError: message (line N)".
func describeSyntaxError(res *runner.Result) string {
	out := res.StderrString()
	if out == "" {
		return "syntax check failed"
	}
	if res.TimedOut {
		return out
	}

	msg := lastLine(out)
	if m := errorLineRe.FindAllStringSubmatch(out, -1); len(m) > 0 {
		last := m[len(m)-1]
		msg = last[1] + ": " + last[2]
	}
	if m := fileLineRe.FindAllStringSubmatch(out, -1); len(m) > 0 {
		msg += " (line " + m[len(m)-1][1] + ")"
	}
	return msg
}

// lastLine returns the last non-empty line of s, trimmed.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
