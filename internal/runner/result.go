package runner

import "time"

// Result holds the outcome of a single command execution.
// A Result is never nil and Run never returns an error: launch failures,
// timeouts and non-zero exits all surface as Success == false with a
// description in Stderr.
type Result struct {
	RunID     string        // unique identifier for this run
	Success   bool          // true when the process exited with code 0
	ExitCode  int           // process exit code, -1 if the process did not exit normally
	Stdout    []byte        // captured stdout (may be truncated)
	Stderr    []byte        // captured stderr, or the failure description
	Truncated bool          // true if output exceeded the size cap
	TimedOut  bool          // true if the command was killed at the deadline
	Duration  time.Duration // wall-clock time spent
}

// StdoutString returns stdout with surrounding whitespace removed.
func (r *Result) StdoutString() string {
	return trimSpace(r.Stdout)
}

// StderrString returns stderr with surrounding whitespace removed.
func (r *Result) StderrString() string {
	return trimSpace(r.Stderr)
}
