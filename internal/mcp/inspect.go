package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/happyrust/preflight/internal/report"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a preflight_run result"`
	Stage string `json:"stage,omitempty" jsonschema:"stage name (system, structure, build, binding, examples). Defaults to all stages."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	outcomes := result.Outcomes
	if params.Stage != "" {
		o, ok := result.Outcome(params.Stage)
		if !ok {
			return errorResult(fmt.Sprintf("Run %s has no stage %q.", params.RunID, params.Stage))
		}
		outcomes = []report.Outcome{o}
	}

	return textResult(formatInspectOutput(params.RunID, outcomes))
}

func formatInspectOutput(runID string, outcomes []report.Outcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", runID)
	for _, o := range outcomes {
		verdict := "pass"
		if !o.Passed {
			verdict = "fail"
		}
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s: %s\n", o.Name, verdict)
		if o.Err != "" {
			fmt.Fprintf(&b, "  [error] %s\n", o.Err)
		}
		if len(o.Lines) == 0 {
			fmt.Fprintln(&b, "  (no diagnostics)")
		}
		for _, l := range o.Lines {
			fmt.Fprintf(&b, "%s[%s] %s\n", strings.Repeat("  ", l.Depth+1), l.Level, l.Message)
		}
	}
	return b.String()
}
