// Package workflow provides the preflight pipeline: the check stages, the
// project metadata collector and the orchestrator that runs them in order.
// It is consumed by both the MCP server and the CLI.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/happyrust/preflight"
	"github.com/happyrust/preflight/internal/config"
	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// ErrNotProjectRoot is returned by Run when the workspace lacks the marker
// file. No stage runs in that case.
var ErrNotProjectRoot = errors.New("not a project root")

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string, opts ...runner.Option) *runner.Result
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config    *config.Config
	Runner    CommandRunner
	Workspace string    // project root; commands run and paths resolve from here
	Out       io.Writer // console output, discarded when nil
	Color     bool
	Logger    *slog.Logger
}

// Stage is one independent category of verification. Check reports its
// findings through d and returns the verdict. A non-nil error means the
// stage itself broke, and the stage is recorded as failed.
type Stage struct {
	Name  string
	Title string
	Icon  string
	Check func(ctx context.Context, d *Diagnostics) (bool, error)
}

// Diagnostics collects the lines a stage emits and echoes them to the
// console as they arrive.
type Diagnostics struct {
	lines   []report.Line
	console *Console
}

func (d *Diagnostics) add(level report.Level, depth int, format string, args ...any) {
	l := report.Line{Level: level, Depth: depth, Message: fmt.Sprintf(format, args...)}
	d.lines = append(d.lines, l)
	if d.console != nil {
		d.console.Line(l)
	}
}

// Passf records a satisfied sub-check.
func (d *Diagnostics) Passf(format string, args ...any) { d.add(report.Pass, 0, format, args...) }

// Failf records a failed sub-check.
func (d *Diagnostics) Failf(format string, args ...any) { d.add(report.Fail, 0, format, args...) }

// Warnf records a condition that does not affect the verdict.
func (d *Diagnostics) Warnf(format string, args ...any) { d.add(report.Warn, 0, format, args...) }

// Detail records a line nested under the previous sub-check.
func (d *Diagnostics) Detail(level report.Level, format string, args ...any) {
	d.add(level, 1, format, args...)
}

// Lines returns the recorded diagnostics.
func (d *Diagnostics) Lines() []report.Line { return d.lines }

var stageHeadings = map[string]struct{ icon, title string }{
	config.StageSystem:    {"🔍", "System requirements"},
	config.StageStructure: {"📁", "Project structure"},
	config.StageBuild:     {"🦀", "Build check"},
	config.StageBinding:   {"🐍", "Binding imports"},
	config.StageExamples:  {"📝", "Example syntax"},
}

// Pipeline returns the configured stages in execution order. Unknown stage
// names yield a stage that always fails.
func (e *Engine) Pipeline() []Stage {
	names := e.cfg().StageNames()
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		stages = append(stages, e.stage(name))
	}
	return stages
}

func (e *Engine) stage(name string) Stage {
	h := stageHeadings[name]
	s := Stage{Name: name, Title: h.title, Icon: h.icon}
	switch name {
	case config.StageSystem:
		s.Check = e.checkSystem
	case config.StageStructure:
		s.Check = e.checkStructure
	case config.StageBuild:
		s.Check = e.checkBuild
	case config.StageBinding:
		s.Check = e.checkBinding
	case config.StageExamples:
		s.Check = e.checkExamples
	default:
		s.Check = func(context.Context, *Diagnostics) (bool, error) {
			return false, fmt.Errorf("unknown stage: %s", name)
		}
	}
	return s
}

// Run executes the configured pipeline. See RunStages.
func (e *Engine) Run(ctx context.Context) (*report.RunResult, error) {
	return e.RunStages(ctx, e.Pipeline())
}

// RunStages verifies the workspace is a project root, runs every stage in
// order, collects project metadata and prints the summary. Stage failures
// never abort the run; the only error returned wraps ErrNotProjectRoot.
func (e *Engine) RunStages(ctx context.Context, stages []Stage) (*report.RunResult, error) {
	con := NewConsole(e.Out, e.Color)
	cfg := e.cfg()
	log := e.logger()

	con.Banner(cfg.ProjectName())

	marker := cfg.MarkerFile()
	if _, err := os.Stat(filepath.Join(e.Workspace, marker)); err != nil {
		con.Errorf("%s not found: run this from the %s project root", marker, cfg.ProjectName())
		return nil, fmt.Errorf("%w: %s not found in %s", ErrNotProjectRoot, marker, e.Workspace)
	}

	rr := &report.RunResult{
		ID:       uuid.New().String(),
		Version:  preflight.Version,
		Outcomes: make([]report.Outcome, 0, len(stages)),
	}
	titles := make(map[string]string, len(stages))

	for _, s := range stages {
		titles[s.Name] = s.label()
		out := e.runStage(ctx, con, s)
		log.Debug("stage finished", "run_id", rr.ID, "stage", s.Name, "passed", out.Passed)
		rr.Outcomes = append(rr.Outcomes, out)
	}

	rr.Info = e.ProjectInfo(ctx)
	con.Info(rr.Info)

	rr.Tally()
	con.Summary(rr, titles, cfg.NextStepLines())
	log.Info("preflight finished", "run_id", rr.ID, "passed", rr.Passed, "total", rr.Total)
	return rr, nil
}

// runStage runs one stage, converting an error or panic into a failed outcome.
func (e *Engine) runStage(ctx context.Context, con *Console, s Stage) (out report.Outcome) {
	out.Name = s.Name
	d := &Diagnostics{console: con}

	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("stage panicked", "stage", s.Name, "panic", r)
			msg := fmt.Sprintf("panic: %v", r)
			con.Errorf("error while running %s: %s", s.Name, msg)
			out.Passed = false
			out.Err = msg
			out.Lines = d.Lines()
		}
	}()

	con.Heading(s.Icon, s.label())

	if s.Check == nil {
		panic("stage has no check")
	}
	passed, err := s.Check(ctx, d)
	out.Lines = d.Lines()
	if err != nil {
		e.logger().Error("stage failed", "stage", s.Name, "error", err)
		con.Errorf("error while running %s: %v", s.Name, err)
		out.Err = err.Error()
		return out
	}
	out.Passed = passed
	return out
}

func (s Stage) label() string {
	if s.Title == "" {
		return s.Name
	}
	return s.Title
}

func (e *Engine) cfg() *config.Config {
	if e.Config == nil {
		return &config.Config{}
	}
	return e.Config
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// run executes argv in the workspace root.
func (e *Engine) run(ctx context.Context, argv []string, opts ...runner.Option) *runner.Result {
	res := e.Runner.Run(ctx, argv, "", opts...)
	e.logger().Debug("command finished",
		"argv", strings.Join(argv, " "),
		"success", res.Success,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
	)
	return res
}

// shell executes a configured command line through the shell.
func (e *Engine) shell(ctx context.Context, line string, opts ...runner.Option) *runner.Result {
	return e.run(ctx, runner.ShellArgv(line), opts...)
}
