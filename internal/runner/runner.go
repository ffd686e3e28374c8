// Package runner executes external commands with workspace bounds,
// a wall-clock timeout and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when the corresponding Runner field is zero.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1 << 20 // 1 MB

	// waitDelay bounds how long Run waits for output pipes to close after
	// the process has been killed.
	waitDelay = 2 * time.Second
)

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	MaxOutput int      // bytes per stream
	Env       []string // extra KEY=VALUE pairs appended to the inherited environment
}

// Option adjusts a single Run call.
type Option func(*runOptions)

type runOptions struct {
	stdin     io.Reader
	env       []string
	maxOutput int
}

// WithStdin feeds r to the command's standard input.
func WithStdin(r io.Reader) Option {
	return func(o *runOptions) {
		o.stdin = r
	}
}

// WithEnv appends KEY=VALUE pairs to the command's environment.
func WithEnv(env ...string) Option {
	return func(o *runOptions) {
		o.env = append(o.env, env...)
	}
}

// WithMaxOutput overrides the per-stream output cap for one call.
func WithMaxOutput(n int) Option {
	return func(o *runOptions) {
		o.maxOutput = n
	}
}

// ShellArgv returns the argv that runs line through the POSIX shell.
func ShellArgv(line string) []string {
	return []string{"sh", "-c", line}
}

// Shell runs a shell command line. See Run.
func (r *Runner) Shell(ctx context.Context, line, cwd string, opts ...Option) *Result {
	return r.Run(ctx, ShellArgv(line), cwd, opts...)
}

// Run executes a command with the given argv. The first element is the
// binary name (resolved via PATH), and the rest are arguments.
// cwd is resolved relative to the workspace root and must remain within it.
//
// The command is killed when the timeout elapses or ctx is done; in both
// cases the process is reaped before Run returns.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string, opts ...Option) *Result {
	start := time.Now()
	res := &Result{RunID: uuid.New().String(), ExitCode: -1}

	if len(argv) == 0 {
		return res.fail(start, "empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return res.fail(start, err.Error())
	}

	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := r.MaxOutput
	if o.maxOutput > 0 {
		maxOutput = o.maxOutput
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if env := append(append([]string(nil), r.Env...), o.env...); len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdin = o.stdin
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: maxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: maxOutput}

	runErr := cmd.Run()

	res.Duration = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = stdout.Len() >= maxOutput || stderr.Len() >= maxOutput

	switch {
	case runErr == nil:
		res.Success = true
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Stderr = []byte(fmt.Sprintf("command timed out after %s", timeout))
	case ctx.Err() != nil:
		res.Stderr = []byte(fmt.Sprintf("command canceled: %v", ctx.Err()))
	case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success():
		// Exited cleanly; a leftover child kept the pipes open.
		res.Success = true
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Binary not found or other exec error.
			res.Stderr = []byte(fmt.Sprintf("executing %s: %v", argv[0], runErr))
		}
	}
	return res
}

func (res *Result) fail(start time.Time, msg string) *Result {
	res.Duration = time.Since(start)
	res.Stderr = []byte(msg)
	return res
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

func trimSpace(b []byte) string {
	return strings.TrimSpace(string(b))
}
