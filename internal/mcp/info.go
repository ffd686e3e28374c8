package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/happyrust/preflight/internal/report"
)

type infoParams struct{}

func (h *handler) infoHandler(ctx context.Context, req *mcp.CallToolRequest, _ infoParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := h.engine.ProjectInfo(ctx)
	if info.Len() == 0 {
		return textResult("No project statistics available.")
	}
	return textResult(formatInfo(info))
}

func formatInfo(info *report.ProjectInfo) string {
	var b strings.Builder
	fmt.Fprintln(&b, "Project statistics:")
	for _, k := range info.Keys() {
		v, _ := info.Get(k)
		fmt.Fprintf(&b, "  %s: %v\n", k, v)
	}
	return b.String()
}
