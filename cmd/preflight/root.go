package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyrust/preflight"
	"github.com/happyrust/preflight/internal/config"
	"github.com/happyrust/preflight/internal/runner"
	"github.com/happyrust/preflight/internal/workflow"
)

// errStagesFailed makes the process exit 1 once the summary is printed.
var errStagesFailed = errors.New("one or more stages failed")

// globalOptions are the flags shared by every command.
type globalOptions struct {
	dir        string
	configPath string
	noColor    bool
	verbose    bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that a project checkout is ready to build",
		Long: `preflight verifies the host toolchain, the project layout, the workspace
build check, the binding imports and the example scripts, then prints a
pass/fail summary. It never installs, builds or repairs anything.

Run it from the project root. It exits 0 when every stage passes and 1
otherwise.`,
		Version:       preflight.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChecks(cmd, opts, jsonOutput)
		},
	}
	cmd.SetVersionTemplate("preflight version {{.Version}}\n")

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run result as JSON instead of the console report")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.dir, "dir", "C", "", "run as if started in this directory")
	pf.StringVar(&opts.configPath, "config", "", "config file (default: .preflight.yaml in the project root)")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log every command to stderr")
	pf.DurationVar(&opts.timeout, "timeout", 0, "override the per-command timeout (e.g. 2m)")

	cmd.AddCommand(newInfoCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func runChecks(cmd *cobra.Command, opts *globalOptions, jsonOutput bool) error {
	eng, err := newEngine(cmd, opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		eng.Out = io.Discard
	}

	result, err := eng.Run(cmd.Context())
	if err != nil {
		if jsonOutput {
			// The console went nowhere; say why on stderr.
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if !result.OK() {
		return errStagesFailed
	}
	return nil
}

// workspace returns the absolute project directory.
func (o *globalOptions) workspace() (string, error) {
	dir := o.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determining workspace: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	return abs, nil
}

func (o *globalOptions) loadConfig(workspace string) (*config.Config, error) {
	var (
		loaded *config.LoadResult
		err    error
	)
	if o.configPath != "" {
		loaded, err = config.LoadFile(o.configPath)
	} else {
		loaded, err = config.Load(workspace)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	if o.timeout > 0 {
		cfg.RawTimeout = o.timeout.String()
	}
	return cfg, nil
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newEngine(cmd *cobra.Command, opts *globalOptions) (*workflow.Engine, error) {
	workspace, err := opts.workspace()
	if err != nil {
		return nil, err
	}
	cfg, err := opts.loadConfig(workspace)
	if err != nil {
		return nil, err
	}

	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}

	out := cmd.OutOrStdout()
	return &workflow.Engine{
		Config:    cfg,
		Runner:    r,
		Workspace: workspace,
		Out:       out,
		Color:     !opts.noColor && workflow.ColorEnabled(out),
		Logger:    opts.logger(cmd.ErrOrStderr()),
	}, nil
}
