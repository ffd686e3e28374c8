package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyrust/preflight/internal/config"
	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// fakeRunner is a test double for CommandRunner. It returns predetermined
// results keyed by fakeRunnerKey and records every call.
type fakeRunner struct {
	mu      sync.Mutex
	Results map[string]*runner.Result
	Calls   []string
}

func (f *fakeRunner) Run(_ context.Context, argv []string, _ string, _ ...runner.Option) *runner.Result {
	key := fakeRunnerKey(argv)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, key)
	if r, ok := f.Results[key]; ok {
		return r
	}
	// Default: success with no output.
	return &runner.Result{Success: true}
}

func (f *fakeRunner) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if c == key {
			return true
		}
	}
	return false
}

// fakeRunnerKey builds a lookup key from argv. Shell invocations are keyed
// by their command line, everything else by the joined argv.
func fakeRunnerKey(argv []string) string {
	if len(argv) == 3 && argv[0] == "sh" && argv[1] == "-c" {
		return argv[2]
	}
	return strings.Join(argv, " ")
}

func okResult(stdout string) *runner.Result {
	return &runner.Result{Success: true, Stdout: []byte(stdout)}
}

func failResult(stderr string) *runner.Result {
	return &runner.Result{Success: false, ExitCode: 1, Stderr: []byte(stderr)}
}

const cargoMetadata = `{"packages":[{"name":"nox"},{"name":"nox-py"},{"name":"db"}],"workspace_members":["nox","nox-py"]}`

// healthyRunner answers every default command as a working host would.
func healthyRunner() *fakeRunner {
	return &fakeRunner{Results: map[string]*runner.Result{
		"python3 --version":                 okResult("Python 3.11.4"),
		"rustc --version":                   okResult("rustc 1.80.0 (051478957 2024-07-21)"),
		"cargo --version":                   okResult("cargo 1.80.0 (376290515 2024-07-16)"),
		"cargo metadata --format-version 1": okResult(cargoMetadata),
		"git rev-parse --short HEAD":        okResult("abc1234"),
		"git branch --show-current":         okResult("main"),
	}}
}

func exampleKey(rel string) string {
	return fakeRunnerKey([]string{"python3", "-c", compileScript, rel})
}

func bindingKey() string {
	return fakeRunnerKey([]string{"python3", "-c", bindingImport("libs/nox-py", "elodin")})
}

// newProject lays out the default Elodin workspace in a temp dir.
func newProject(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	cfg := &config.Config{}
	for _, dir := range cfg.RequiredDirs() {
		require.NoError(t, os.MkdirAll(filepath.Join(ws, dir), 0o755))
	}
	for _, file := range cfg.RequiredFiles() {
		require.NoError(t, os.WriteFile(filepath.Join(ws, file), []byte("\n"), 0o644))
	}
	for _, ex := range cfg.ExampleFiles() {
		writeFile(t, ws, ex, "print('hello')\n")
	}
	writeFile(t, ws, "libs/nox/src/lib.rs", "pub fn nox() {}\n")
	writeFile(t, ws, "fsw/src/main.rs", "fn main() {}\n")
	return ws
}

func writeFile(t *testing.T, ws, rel, content string) {
	t.Helper()
	path := filepath.Join(ws, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newEngine(ws string, fr *fakeRunner) (*Engine, *bytes.Buffer) {
	var out bytes.Buffer
	return &Engine{
		Config:    &config.Config{},
		Runner:    fr,
		Workspace: ws,
		Out:       &out,
	}, &out
}

func TestRun_AllStagesPass(t *testing.T) {
	ws := newProject(t)
	e, out := newEngine(ws, healthyRunner())

	rr, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rr.OK())
	assert.Equal(t, 5, rr.Total)
	assert.Equal(t, 5, rr.Passed)
	assert.NotEmpty(t, rr.ID)

	names := make([]string, 0, len(rr.Outcomes))
	for _, o := range rr.Outcomes {
		names = append(names, o.Name)
	}
	assert.Equal(t, config.DefaultStages, names)

	assert.Contains(t, out.String(), "Total: 5/5 stages passed")
	assert.Contains(t, out.String(), "Next steps:")
	assert.Contains(t, out.String(), "workspace_members: 2")
}

func TestRun_OneStageFails(t *testing.T) {
	ws := newProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(ws, "libs/db")))
	e, out := newEngine(ws, healthyRunner())

	rr, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, rr.OK())
	assert.Equal(t, 4, rr.Passed)
	assert.Equal(t, 1, rr.Failed())

	o, found := rr.Outcome(config.StageStructure)
	require.True(t, found)
	assert.False(t, o.Passed)

	assert.Contains(t, out.String(), "Total: 4/5 stages passed")
	assert.Contains(t, out.String(), "1 stage(s) failed")
	assert.NotContains(t, out.String(), "Next steps:")
}

func TestRun_NotProjectRoot(t *testing.T) {
	ws := t.TempDir()
	fr := healthyRunner()
	e, out := newEngine(ws, fr)

	rr, err := e.Run(context.Background())
	assert.Nil(t, rr)
	assert.True(t, errors.Is(err, ErrNotProjectRoot))
	assert.Empty(t, fr.Calls, "no stage may run outside the project root")
	assert.Contains(t, out.String(), "Cargo.toml not found")
}

func TestRun_CustomMarker(t *testing.T) {
	ws := newProject(t)
	e, _ := newEngine(ws, healthyRunner())
	e.Config.Marker = "pyproject.toml"

	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotProjectRoot)

	writeFile(t, ws, "pyproject.toml", "")
	_, err = e.Run(context.Background())
	assert.NoError(t, err)
}

func TestRun_BuildFailureDoesNotStopLaterStages(t *testing.T) {
	ws := newProject(t)
	fr := healthyRunner()
	fr.Results["cargo check --workspace"] = failResult("error[E0425]: cannot find value `x`")
	e, _ := newEngine(ws, fr)

	rr, err := e.Run(context.Background())
	require.NoError(t, err)

	build, _ := rr.Outcome(config.StageBuild)
	assert.False(t, build.Passed)
	for _, name := range []string{config.StageBinding, config.StageExamples} {
		o, found := rr.Outcome(name)
		require.True(t, found, name)
		assert.True(t, o.Passed, name)
	}
	assert.True(t, fr.called(exampleKey("examples/ball/main.py")))
}

func TestRunStages_IsolatesPanicsAndErrors(t *testing.T) {
	ws := newProject(t)
	e, out := newEngine(ws, healthyRunner())

	ran := false
	stages := []Stage{
		{Name: "boom", Check: func(context.Context, *Diagnostics) (bool, error) {
			panic("index out of range")
		}},
		{Name: "broken", Check: func(_ context.Context, d *Diagnostics) (bool, error) {
			d.Passf("partial")
			return true, errors.New("disk on fire")
		}},
		{Name: "fine", Check: func(context.Context, *Diagnostics) (bool, error) {
			ran = true
			return true, nil
		}},
	}

	rr, err := e.RunStages(context.Background(), stages)
	require.NoError(t, err)
	require.Len(t, rr.Outcomes, 3)

	assert.False(t, rr.Outcomes[0].Passed)
	assert.Contains(t, rr.Outcomes[0].Err, "index out of range")

	assert.False(t, rr.Outcomes[1].Passed, "an error overrides the verdict")
	assert.Equal(t, "disk on fire", rr.Outcomes[1].Err)
	assert.Len(t, rr.Outcomes[1].Lines, 1)

	assert.True(t, ran)
	assert.True(t, rr.Outcomes[2].Passed)
	assert.Contains(t, out.String(), "Total: 1/3 stages passed")
}

func TestRunStages_NilCheck(t *testing.T) {
	ws := newProject(t)
	e, _ := newEngine(ws, healthyRunner())

	rr, err := e.RunStages(context.Background(), []Stage{{Name: "empty"}})
	require.NoError(t, err)
	assert.False(t, rr.Outcomes[0].Passed)
	assert.NotEmpty(t, rr.Outcomes[0].Err)
}

func TestPipeline_UnknownStage(t *testing.T) {
	ws := newProject(t)
	e, _ := newEngine(ws, healthyRunner())
	e.Config.Stages = []string{config.StageStructure, "bogus"}

	rr, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rr.Outcomes, 2)

	assert.True(t, rr.Outcomes[0].Passed)
	assert.False(t, rr.Outcomes[1].Passed)
	assert.Equal(t, "unknown stage: bogus", rr.Outcomes[1].Err)
}

func TestPipeline_DefaultOrder(t *testing.T) {
	e := &Engine{}
	stages := e.Pipeline()
	require.Len(t, stages, 5)
	for i, s := range stages {
		assert.Equal(t, config.DefaultStages[i], s.Name)
		assert.NotEmpty(t, s.Title)
		assert.NotNil(t, s.Check)
	}
}

func TestRun_RecordsDiagnostics(t *testing.T) {
	ws := newProject(t)
	e, _ := newEngine(ws, healthyRunner())

	rr, err := e.Run(context.Background())
	require.NoError(t, err)

	o, _ := rr.Outcome(config.StageSystem)
	require.NotEmpty(t, o.Lines)
	assert.Equal(t, report.Line{Level: report.Pass, Message: "Python 3.11.4"}, o.Lines[0])
}
