package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyrust/preflight/internal/config"
	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// fakeRunner answers commands from a table keyed by the joined argv (or the
// shell command line). Unknown commands succeed with no output.
type fakeRunner map[string]*runner.Result

func (f fakeRunner) Run(_ context.Context, argv []string, _ string, _ ...runner.Option) *runner.Result {
	key := strings.Join(argv, " ")
	if len(argv) == 3 && argv[0] == "sh" && argv[1] == "-c" {
		key = argv[2]
	}
	if r, ok := f[key]; ok {
		return r
	}
	return &runner.Result{Success: true}
}

func healthy() fakeRunner {
	return fakeRunner{
		"python3 --version":                 {Success: true, Stdout: []byte("Python 3.12.3")},
		"cargo metadata --format-version 1": {Success: true, Stdout: []byte(`{"packages":[{},{}],"workspace_members":[{}]}`)},
		"git rev-parse --short HEAD":        {Success: true, Stdout: []byte("deadbee")},
		"git branch --show-current":         {Success: true, Stdout: []byte("main")},
	}
}

// projectDir lays out a workspace satisfying the default structure stage.
func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	for _, d := range cfg.RequiredDirs() {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	var paths []string
	paths = append(paths, cfg.RequiredFiles()...)
	paths = append(paths, cfg.ExampleFiles()...)
	for _, f := range paths {
		p := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("\n"), 0o644))
	}
	return dir
}

// setup creates a preflight MCP server + client over in-memory transports.
func setup(t *testing.T, workspaceDir string, cfg *config.Config, fr fakeRunner) *mcp.ClientSession {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	return connect(t, NewServer(cfg, nil, report.NewLRUStore(5), workspaceDir, WithCommandRunner(fr)))
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool(%s)", name)
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

// --- preflight_run ---

func TestPreflightRun_Passing(t *testing.T) {
	cs := setup(t, projectDir(t), nil, healthy())

	res := callTool(t, cs, "preflight_run", nil)
	text := resultText(res)
	require.False(t, res.IsError, text)

	assert.Contains(t, text, "Status: PASS (5/5 stages passed)")
	for _, stage := range config.DefaultStages {
		assert.Contains(t, text, stage+": pass")
	}
	assert.Contains(t, text, "git_commit: deadbee")
	assert.NotContains(t, text, "preflight_inspect")
}

func TestPreflightRun_Failing(t *testing.T) {
	dir := projectDir(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "libs/nox")))
	fr := healthy()
	fr["cargo check --workspace"] = &runner.Result{Stderr: []byte("error: could not compile `nox`")}
	cs := setup(t, dir, nil, fr)

	text := resultText(callTool(t, cs, "preflight_run", nil))
	assert.Contains(t, text, "Status: FAIL (3/5 stages passed)")
	assert.Contains(t, text, "structure: fail")
	assert.Contains(t, text, "libs/nox/ (missing)")
	assert.Contains(t, text, "build: fail")
	assert.Contains(t, text, "examples: pass")
	assert.Contains(t, text, "preflight_inspect")
}

func TestPreflightRun_SelectedStages(t *testing.T) {
	cs := setup(t, projectDir(t), nil, healthy())

	text := resultText(callTool(t, cs, "preflight_run", map[string]any{
		"stages": []string{"structure", "nope"},
	}))
	assert.Contains(t, text, "Status: FAIL (1/2 stages passed)")
	assert.Contains(t, text, "error: unknown stage: nope")
	assert.NotContains(t, text, "system:")
}

func TestPreflightRun_NotProjectRoot(t *testing.T) {
	cs := setup(t, t.TempDir(), nil, healthy())

	res := callTool(t, cs, "preflight_run", nil)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "Cargo.toml not found")
}

// --- preflight_info ---

func TestPreflightInfo(t *testing.T) {
	cs := setup(t, projectDir(t), nil, healthy())

	text := resultText(callTool(t, cs, "preflight_info", nil))
	assert.Contains(t, text, "workspace_members: 1")
	assert.Contains(t, text, "packages: 2")
	assert.Contains(t, text, "git_branch: main")
	assert.Contains(t, text, "python_files: 5")
}

// --- preflight_inspect ---

func TestPreflightInspect_MissingRunID(t *testing.T) {
	cs := setup(t, projectDir(t), nil, healthy())
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "preflight_inspect",
		Arguments: map[string]any{"stage": "build"},
	})
	assert.Error(t, err, "run_id is required by the input schema")
}

func TestPreflightInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, projectDir(t), nil, healthy())
	res := callTool(t, cs, "preflight_inspect", map[string]any{"run_id": "nonexistent-id"})
	assert.True(t, res.IsError)
}

func TestPreflightInspect_AfterRun(t *testing.T) {
	fr := healthy()
	fr["python3 -c "+`import sys; sys.path.insert(0, "libs/nox-py"); import elodin`] = &runner.Result{
		Stderr: []byte("ModuleNotFoundError: No module named 'elodin'"),
	}
	cs := setup(t, projectDir(t), nil, fr)
	id := runID(t, resultText(callTool(t, cs, "preflight_run", nil)))

	res := callTool(t, cs, "preflight_inspect", map[string]any{"run_id": id, "stage": "binding"})
	text := resultText(res)
	require.False(t, res.IsError, text)

	assert.Contains(t, text, "binding: pass")
	assert.Contains(t, text, "[warn] elodin binding not built yet")
	assert.Contains(t, text, "    [info] ModuleNotFoundError: No module named 'elodin'")
	assert.NotContains(t, text, "system:")

	res = callTool(t, cs, "preflight_inspect", map[string]any{"run_id": id, "stage": "deploy"})
	assert.True(t, res.IsError)

	all := resultText(callTool(t, cs, "preflight_inspect", map[string]any{"run_id": id}))
	for _, stage := range config.DefaultStages {
		assert.Contains(t, all, stage+": pass")
	}
}

// brokenStore refuses every save.
type brokenStore struct{}

func (brokenStore) Save(*report.RunResult) error { return errors.New("disk full") }

func (brokenStore) Load(id string) (*report.RunResult, error) {
	return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
}

func TestPreflightRun_StoreFailureLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	server := NewServer(&config.Config{}, nil, brokenStore{}, projectDir(t),
		WithCommandRunner(healthy()), WithLogger(logger))
	cs := connect(t, server)

	res := callTool(t, cs, "preflight_run", nil)
	assert.False(t, res.IsError, "a failed save does not fail the run")
	assert.Contains(t, resultText(res), "Status: PASS")
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "run not stored")
	assert.Contains(t, logs.String(), "disk full")
}
