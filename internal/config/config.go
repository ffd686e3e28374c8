// Package config loads and validates the optional .preflight.yaml file.
//
// Every field is optional. Zero values fall back to the defaults below,
// which describe the Elodin workspace layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace root.
const FileName = ".preflight.yaml"

// Default values for runner configuration.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultMarker    = "Cargo.toml"
)

// Stage names, in default execution order.
const (
	StageSystem    = "system"
	StageStructure = "structure"
	StageBuild     = "build"
	StageBinding   = "binding"
	StageExamples  = "examples"
)

// DefaultStages is the fixed stage order used when none is configured.
var DefaultStages = []string{StageSystem, StageStructure, StageBuild, StageBinding, StageExamples}

// Config holds the parsed .preflight.yaml configuration.
type Config struct {
	Version      int             `yaml:"version"`
	Name         string          `yaml:"name"`       // project name shown in the banner
	RawTimeout   string          `yaml:"timeout"`    // e.g. "30s", "2m"
	RawMaxOutput int             `yaml:"max_output"` // bytes
	Marker       string          `yaml:"marker"`     // file identifying the project root
	Stages       []string        `yaml:"stages"`
	System       SystemConfig    `yaml:"system"`
	Structure    StructureConfig `yaml:"structure"`
	Build        BuildConfig     `yaml:"build"`
	Binding      BindingConfig   `yaml:"binding"`
	Examples     ExamplesConfig  `yaml:"examples"`
	Report       ReportConfig    `yaml:"report"`
	NextSteps    []string        `yaml:"next_steps"`
}

// SystemConfig controls the system requirements stage.
type SystemConfig struct {
	Python    string   `yaml:"python"`     // interpreter binary (default: python3)
	MinPython string   `yaml:"min_python"` // minimum major.minor (default: 3.8)
	Tools     []string `yaml:"tools"`      // executables that must be on PATH
	Locate    string   `yaml:"locate"`     // PATH lookup utility (default: which)
	Toolchain []string `yaml:"toolchain"`  // version-query command lines
}

// StructureConfig lists paths that must exist relative to the workspace.
type StructureConfig struct {
	Dirs  []string `yaml:"dirs"`
	Files []string `yaml:"files"`
}

// BuildConfig controls the build-tool stage.
type BuildConfig struct {
	Command string `yaml:"command"`
}

// BindingConfig controls the binding import stage.
type BindingConfig struct {
	Modules []string `yaml:"modules"` // interpreter modules that must import
	Module  string   `yaml:"module"`  // the project's own binding module
	Path    string   `yaml:"path"`    // build output dir injected into the import path
}

// ExamplesConfig lists scripts that are syntax-checked.
type ExamplesConfig struct {
	Files []string `yaml:"files"`
}

// ReportConfig controls project metadata collection.
type ReportConfig struct {
	MetadataCommand string            `yaml:"metadata_command"`
	Counts          map[string]string `yaml:"counts"`     // metric name -> JSONPath into metadata output
	Extensions      map[string]string `yaml:"extensions"` // metric name -> file extension
	SkipDirs        []string          `yaml:"skip_dirs"`  // directory names not descended into
}

var (
	defaultTools     = []string{"curl", "git", "cmake", "pkg-config"}
	defaultToolchain = []string{"rustc --version", "cargo --version"}
	defaultDirs      = []string{
		"apps/elodin",
		"libs/nox-py",
		"libs/nox",
		"libs/elodin-editor",
		"libs/db",
		"fsw",
		"examples",
	}
	defaultFiles    = []string{"Cargo.toml", "rust-toolchain.toml", "flake.nix", "justfile"}
	defaultModules  = []string{"json", "pathlib", "subprocess", "sys", "os"}
	defaultExamples = []string{
		"libs/nox-py/examples/three-body.py",
		"libs/nox-py/examples/rocket.py",
		"libs/nox-py/examples/cube-sat.py",
		"examples/drone/main.py",
		"examples/ball/main.py",
	}
	defaultNextSteps = []string{
		"Run ./setup-environment.sh to install dependencies",
		"Run ./setup-environment.sh build to build the project",
		"Run an example: elodin editor libs/nox-py/examples/three-body.py",
	}
)

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ProjectName returns the display name of the target project.
func (c *Config) ProjectName() string {
	return orDefault(c.Name, "Elodin")
}

// MarkerFile returns the project root marker, falling back to Cargo.toml.
func (c *Config) MarkerFile() string {
	return orDefault(c.Marker, DefaultMarker)
}

// StageNames returns the configured stages, falling back to defaults.
func (c *Config) StageNames() []string {
	return orDefaults(c.Stages, DefaultStages)
}

// Python returns the interpreter used for version, import and syntax checks.
func (c *Config) Python() string { return orDefault(c.System.Python, "python3") }

// MinPython returns the minimum interpreter version as "MAJOR.MINOR".
func (c *Config) MinPython() string { return orDefault(c.System.MinPython, "3.8") }

// LocateTool returns the command used to find required tools on PATH.
func (c *Config) LocateTool() string { return orDefault(c.System.Locate, "which") }

// RequiredTools returns the tools that must be on PATH.
func (c *Config) RequiredTools() []string { return orDefaults(c.System.Tools, defaultTools) }

// Toolchain returns the version query command lines for the toolchain.
func (c *Config) Toolchain() []string { return orDefaults(c.System.Toolchain, defaultToolchain) }

// RequiredDirs returns the directories the project root must contain.
func (c *Config) RequiredDirs() []string { return orDefaults(c.Structure.Dirs, defaultDirs) }

// RequiredFiles returns the files the project root must contain.
func (c *Config) RequiredFiles() []string { return orDefaults(c.Structure.Files, defaultFiles) }

// BuildCommand returns the workspace-wide build/check command line.
func (c *Config) BuildCommand() string {
	return orDefault(c.Build.Command, "cargo check --workspace")
}

// StdModules returns the standard modules that must import cleanly.
func (c *Config) StdModules() []string { return orDefaults(c.Binding.Modules, defaultModules) }

// BindingModule returns the name of the project's native binding module.
func (c *Config) BindingModule() string { return orDefault(c.Binding.Module, "elodin") }

// BindingPath returns the directory prepended to the import path for the binding.
func (c *Config) BindingPath() string { return orDefault(c.Binding.Path, "libs/nox-py") }

// ExampleFiles returns the example scripts to syntax-check.
func (c *Config) ExampleFiles() []string { return orDefaults(c.Examples.Files, defaultExamples) }

// MetadataCommand returns the workspace metadata query command line.
func (c *Config) MetadataCommand() string {
	return orDefault(c.Report.MetadataCommand, "cargo metadata --format-version 1")
}

// Metric is a named value derived from an expression, kept in a fixed order.
type Metric struct {
	Name string
	Expr string
}

// MetadataCounts returns the list-length metrics extracted from the
// metadata document, sorted by name for a stable report.
func (c *Config) MetadataCounts() []Metric {
	if len(c.Report.Counts) == 0 {
		return []Metric{
			{Name: "workspace_members", Expr: "$.workspace_members"},
			{Name: "packages", Expr: "$.packages"},
		}
	}
	return sortedMetrics(c.Report.Counts)
}

// FileExtensions returns the per-extension file count metrics.
func (c *Config) FileExtensions() []Metric {
	if len(c.Report.Extensions) == 0 {
		return []Metric{
			{Name: "rust_files", Expr: ".rs"},
			{Name: "python_files", Expr: ".py"},
		}
	}
	return sortedMetrics(c.Report.Extensions)
}

// SkipDirs returns directory names the file count walk does not enter.
func (c *Config) SkipDirs() []string {
	return c.Report.SkipDirs
}

// NextStepLines returns the guidance printed after a fully passing run.
func (c *Config) NextStepLines() []string {
	return orDefaults(c.NextSteps, defaultNextSteps)
}

// Validate reports configuration values that can never work.
func (c *Config) Validate() error {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout %q: %w", c.RawTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout %q must be positive", c.RawTimeout)
		}
	}
	if c.RawMaxOutput < 0 {
		return fmt.Errorf("max_output %d must not be negative", c.RawMaxOutput)
	}
	if filepath.IsAbs(c.Marker) {
		return fmt.Errorf("marker %q must be relative to the workspace", c.Marker)
	}
	return nil
}

// LoadResult holds the parsed config and the file it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when defaults are used
}

// Load reads .preflight.yaml from the workspace. If the file does not
// exist, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	path := filepath.Join(workspace, FileName)
	res, err := LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}}, nil
		}
		return nil, err
	}
	return res, nil
}

// LoadFile reads an explicit config file. Unlike Load, a missing file is
// an error.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

func sortedMetrics(m map[string]string) []Metric {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Metric, 0, len(names))
	for _, name := range names {
		out = append(out, Metric{Name: name, Expr: m[name]})
	}
	return out
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaults(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}
