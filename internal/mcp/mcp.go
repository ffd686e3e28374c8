// Package mcp provides the preflight MCP server, registering the run,
// info and inspect tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/happyrust/preflight"
	"github.com/happyrust/preflight/internal/config"
	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
	"github.com/happyrust/preflight/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	// mu serializes tool calls so two runs never overlap subprocesses.
	mu     sync.Mutex
	engine *workflow.Engine
	runner *runner.Runner // retained for updateWorkspaceFromRoots
	store  report.Store
}

// NewServer creates an MCP server with all preflight tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	cr := so.commands
	if cr == nil {
		cr = r
	}
	if so.logger == nil {
		so.logger = slog.New(slog.DiscardHandler)
	}

	h := &handler{
		engine: &workflow.Engine{
			Config:    cfg,
			Runner:    cr,
			Workspace: workspace,
			Logger:    so.logger,
		},
		runner: r,
		store:  store,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "preflight", Version: preflight.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "preflight_run",
		Description: `Run the preflight stages (system, structure, build, binding, examples) against the workspace.

Every stage runs even when an earlier one fails. Returns a pass/fail line per stage, the
failing diagnostics, and project statistics. Results are stored for drill-down via preflight_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "preflight_info",
		Description: "Report project statistics: workspace member and package counts, git commit and branch, and source file counts.",
	}, h.infoHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "preflight_inspect",
		Description: `Show every diagnostic line recorded by a preflight_run.

Use the run_id from the preflight_run output. Pass a stage name to restrict the output to one stage.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the preflight MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	commands workflow.CommandRunner
	logger   *slog.Logger
}

// WithCommandRunner replaces the runner used by the stages.
func WithCommandRunner(cr workflow.CommandRunner) ServerOption {
	return func(o *serverOptions) {
		o.commands = cr
	}
}

// WithLogger attaches a structured logger to the engine.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's engine, runner, and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.runner != nil {
		h.runner.Workspace = workspace
		h.runner.Timeout = loaded.Config.Timeout()
		h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
	}
	h.engine.Config = loaded.Config
	h.engine.Workspace = workspace
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
