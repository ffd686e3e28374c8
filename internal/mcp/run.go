package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/workflow"
)

type runParams struct {
	Stages []string `json:"stages,omitempty" jsonschema:"stage names to run, in order (system, structure, build, binding, examples). Defaults to the configured stages."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var console bytes.Buffer
	e := *h.engine
	e.Out = &console
	e.Color = false
	if len(params.Stages) > 0 {
		cfg := *e.Config
		cfg.Stages = params.Stages
		e.Config = &cfg
	}

	result, err := e.Run(ctx)
	if err != nil {
		if errors.Is(err, workflow.ErrNotProjectRoot) {
			return errorResult(fmt.Sprintf("%v\nThe workspace must be the project root.", err))
		}
		return errorResult(fmt.Sprintf("preflight failed: %v", err))
	}

	// Save results for preflight_inspect.
	if err := h.store.Save(result); err != nil {
		h.engine.Logger.Warn("run not stored", "run_id", result.ID, "error", err)
	}

	return textResult(formatRun(result))
}

func formatRun(rr *report.RunResult) string {
	var b strings.Builder

	status := "PASS"
	if !rr.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Status: %s (%d/%d stages passed)\n", status, rr.Passed, rr.Total)
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintln(&b)

	for _, o := range rr.Outcomes {
		verdict := "pass"
		if !o.Passed {
			verdict = "fail"
		}
		fmt.Fprintf(&b, "%s: %s\n", o.Name, verdict)
		if o.Err != "" {
			fmt.Fprintf(&b, "  error: %s\n", o.Err)
		}
		for _, l := range o.Failures() {
			fmt.Fprintf(&b, "  %s\n", l.Message)
		}
	}

	if rr.Info != nil && rr.Info.Len() > 0 {
		fmt.Fprintln(&b)
		b.WriteString(formatInfo(rr.Info))
	}

	if !rr.OK() {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Inspect with preflight_inspect(run_id=%q, stage=\"<stage>\").\n", rr.ID)
	}
	return b.String()
}
