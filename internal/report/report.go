// Package report holds the structured results of a preflight run: the
// ordered stage outcomes, the project metadata and the aggregate verdict.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Level classifies a single diagnostic line.
type Level string

const (
	Pass Level = "pass"
	Fail Level = "fail"
	Warn Level = "warn"
	Info Level = "info"
)

// Line is one diagnostic produced by a stage. Depth 0 lines describe a
// sub-check; depth 1 lines add detail beneath the preceding line.
type Line struct {
	Level   Level  `json:"level"`
	Depth   int    `json:"depth,omitempty"`
	Message string `json:"message"`
}

// Outcome is the verdict of one stage, in invocation order.
type Outcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Lines  []Line `json:"lines,omitempty"`
	Err    string `json:"error,omitempty"` // unexpected failure inside the stage
}

// Failures returns the lines of the outcome at Fail level.
func (o Outcome) Failures() []Line {
	var out []Line
	for _, l := range o.Lines {
		if l.Level == Fail {
			out = append(out, l)
		}
	}
	return out
}

// RunResult is the full result of one preflight run.
type RunResult struct {
	ID       string       `json:"id"`
	Version  string       `json:"version,omitempty"`
	Outcomes []Outcome    `json:"outcomes"`
	Info     *ProjectInfo `json:"info,omitempty"`
	Passed   int          `json:"passed"`
	Total    int          `json:"total"`
}

// OK reports whether every stage passed.
func (r *RunResult) OK() bool {
	return r.Passed == r.Total
}

// Failed returns the number of failed stages.
func (r *RunResult) Failed() int {
	return r.Total - r.Passed
}

// Outcome returns the outcome for the named stage.
func (r *RunResult) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Tally recomputes Passed and Total from Outcomes.
func (r *RunResult) Tally() {
	r.Total = len(r.Outcomes)
	r.Passed = 0
	for _, o := range r.Outcomes {
		if o.Passed {
			r.Passed++
		}
	}
}

// ProjectInfo is an insertion-ordered mapping from metric name to an int
// or string value. A missing key means its source was unavailable.
type ProjectInfo struct {
	keys   []string
	values map[string]any
}

// NewProjectInfo returns an empty ProjectInfo.
func NewProjectInfo() *ProjectInfo {
	return &ProjectInfo{values: make(map[string]any)}
}

// SetInt records an integer metric.
func (p *ProjectInfo) SetInt(key string, v int) { p.set(key, v) }

// SetString records a text metric.
func (p *ProjectInfo) SetString(key, v string) { p.set(key, v) }

func (p *ProjectInfo) set(key string, v any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// Get returns the value for key and whether it is present.
func (p *ProjectInfo) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Int returns the integer value for key, if present and integral.
func (p *ProjectInfo) Int(key string) (int, bool) {
	v, ok := p.values[key].(int)
	return v, ok
}

// Keys returns metric names in insertion order.
func (p *ProjectInfo) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of metrics.
func (p *ProjectInfo) Len() int {
	return len(p.keys)
}

// MarshalJSON encodes the metrics as a JSON object in insertion order.
func (p *ProjectInfo) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshalling %s: %w", k, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
