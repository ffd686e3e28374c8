package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	pfmcp "github.com/happyrust/preflight/internal/mcp"
	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// runHistory is how many runs the MCP server keeps for preflight_inspect.
const runHistory = 5

func newMCPCmd(opts *globalOptions) *cobra.Command {
	var (
		instructions bool
		httpAddr     string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the preflight tools over MCP (stdio by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if instructions {
				_, err := fmt.Fprint(cmd.OutOrStdout(), pfmcp.Instructions)
				return err
			}
			return serve(cmd, opts, httpAddr)
		},
	}

	cmd.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address (e.g. :9090)")
	return cmd
}

func serve(cmd *cobra.Command, opts *globalOptions, httpAddr string) error {
	workspace, err := opts.workspace()
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig(workspace)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}
	// stdout carries the protocol; logs go to stderr.
	logger := opts.logger(cmd.ErrOrStderr())
	server := pfmcp.NewServer(cfg, r, report.NewLRUStore(runHistory), workspace, pfmcp.WithLogger(logger))

	ctx := cmd.Context()
	if httpAddr != "" {
		logger.Info("serving MCP over HTTP", "addr", httpAddr, "workspace", workspace)
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
