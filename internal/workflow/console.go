package workflow

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/happyrust/preflight/internal/report"
)

const rule = "=================================================="

// Console renders stage diagnostics, project metadata and the final
// summary for a human operator. The wording is not a stable interface.
type Console struct {
	w     io.Writer
	pass  *color.Color
	fail  *color.Color
	warn  *color.Color
	title *color.Color
	dim   *color.Color
}

// NewConsole creates a Console writing to w. Colors are used only when
// colorize is true.
func NewConsole(w io.Writer, colorize bool) *Console {
	if w == nil {
		w = io.Discard
	}
	c := &Console{
		w:     w,
		pass:  color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
		title: color.New(color.Bold),
		dim:   color.New(color.FgCyan),
	}
	for _, col := range []*color.Color{c.pass, c.fail, c.warn, c.title, c.dim} {
		if colorize {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// ColorEnabled reports whether w is a terminal that should get colors.
// NO_COLOR is honored.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Banner prints the run header.
func (c *Console) Banner(project string) {
	_, _ = fmt.Fprintln(c.w, c.title.Sprintf("🚀 %s preflight", project))
	_, _ = fmt.Fprintln(c.w, rule)
}

// Heading announces a stage.
func (c *Console) Heading(icon, title string) {
	if icon == "" {
		icon = "▶"
	}
	_, _ = fmt.Fprintln(c.w)
	_, _ = fmt.Fprintf(c.w, "%s %s\n", icon, c.title.Sprintf("%s...", title))
}

// Line prints one diagnostic, indented by its depth.
func (c *Console) Line(l report.Line) {
	indent := strings.Repeat("  ", l.Depth+1)
	_, _ = fmt.Fprintf(c.w, "%s%s %s\n", indent, c.icon(l.Level), l.Message)
}

// Errorf prints a top-level error line.
func (c *Console) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.w, "%s %s\n", c.fail.Sprint("❌"), fmt.Sprintf(format, args...))
}

// Info prints the project metadata block.
func (c *Console) Info(info *report.ProjectInfo) {
	_, _ = fmt.Fprintln(c.w)
	_, _ = fmt.Fprintln(c.w, c.title.Sprint("📊 Project statistics:"))
	if info == nil || info.Len() == 0 {
		_, _ = fmt.Fprintln(c.w, "  (no metadata available)")
		return
	}
	for _, k := range info.Keys() {
		v, _ := info.Get(k)
		_, _ = fmt.Fprintf(c.w, "  %s: %v\n", c.dim.Sprint(k), v)
	}
}

// Summary prints each stage verdict followed by the overall result.
// nextSteps is shown only when every stage passed.
func (c *Console) Summary(rr *report.RunResult, titles map[string]string, nextSteps []string) {
	_, _ = fmt.Fprintln(c.w)
	_, _ = fmt.Fprintln(c.w, rule)
	_, _ = fmt.Fprintln(c.w, c.title.Sprint("📋 Summary:"))

	for _, o := range rr.Outcomes {
		label := titles[o.Name]
		if label == "" {
			label = o.Name
		}
		status := c.pass.Sprint("✅ passed")
		if !o.Passed {
			status = c.fail.Sprint("❌ failed")
		}
		_, _ = fmt.Fprintf(c.w, "  %s: %s\n", label, status)
	}

	_, _ = fmt.Fprintf(c.w, "\nTotal: %d/%d stages passed\n", rr.Passed, rr.Total)

	if rr.OK() {
		_, _ = fmt.Fprintln(c.w)
		_, _ = fmt.Fprintln(c.w, c.pass.Sprint("🎉 All stages passed! The project is ready."))
		if len(nextSteps) > 0 {
			_, _ = fmt.Fprintln(c.w, "\nNext steps:")
			for i, s := range nextSteps {
				_, _ = fmt.Fprintf(c.w, "%d. %s\n", i+1, s)
			}
		}
		return
	}

	_, _ = fmt.Fprintln(c.w)
	_, _ = fmt.Fprintln(c.w, c.warn.Sprintf("⚠️  %d stage(s) failed; check the output above.", rr.Failed()))
}

func (c *Console) icon(l report.Level) string {
	switch l {
	case report.Pass:
		return c.pass.Sprint("✅")
	case report.Fail:
		return c.fail.Sprint("❌")
	case report.Warn:
		return c.warn.Sprint("⚠️ ")
	default:
		return c.dim.Sprint("•")
	}
}
