package workflow

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"regexp"

	"github.com/oliveagle/jsonpath"

	"github.com/happyrust/preflight/internal/report"
	"github.com/happyrust/preflight/internal/runner"
)

// metadataMaxOutput bounds the metadata document, which lists every
// package in the dependency graph and can be far larger than normal output.
const metadataMaxOutput = 64 << 20

var topLevelKeyRe = regexp.MustCompile(`^\$\.([A-Za-z_][A-Za-z0-9_-]*)$`)

// ProjectInfo gathers project metadata from the build tool, version control
// and a file-system walk. Every source is optional: a failing source leaves
// its keys absent and never fails the call.
func (e *Engine) ProjectInfo(ctx context.Context) *report.ProjectInfo {
	info := report.NewProjectInfo()
	e.collectMetadata(ctx, info)
	e.collectVCS(ctx, info)
	e.countFiles(info)
	return info
}

func (e *Engine) collectMetadata(ctx context.Context, info *report.ProjectInfo) {
	log := e.logger()
	res := e.shell(ctx, e.cfg().MetadataCommand(), runner.WithMaxOutput(metadataMaxOutput))
	if !res.Success || res.Truncated {
		log.Debug("metadata unavailable", "stderr", firstLine(res.StderrString()), "truncated", res.Truncated)
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(res.Stdout, &doc); err != nil || doc == nil {
		log.Debug("metadata not an object", "error", err)
		return
	}

	for _, m := range e.cfg().MetadataCounts() {
		if key, ok := topLevelKey(m.Expr); ok {
			if _, present := doc[key]; !present {
				info.SetInt(m.Name, 0)
				continue
			}
		}
		v, err := jsonpath.JsonPathLookup(doc, m.Expr)
		if err != nil {
			log.Debug("metadata lookup failed", "metric", m.Name, "expr", m.Expr, "error", err)
			continue
		}
		switch t := v.(type) {
		case []any:
			info.SetInt(m.Name, len(t))
		case map[string]any:
			info.SetInt(m.Name, len(t))
		case float64:
			info.SetInt(m.Name, int(t))
		case string:
			info.SetString(m.Name, t)
		}
	}
}

// topLevelKey reports the member name of a plain "$.name" expression.
// Absent top-level members count as empty lists.
func topLevelKey(expr string) (string, bool) {
	m := topLevelKeyRe.FindStringSubmatch(expr)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (e *Engine) collectVCS(ctx context.Context, info *report.ProjectInfo) {
	queries := []struct {
		key  string
		argv []string
	}{
		{"git_commit", []string{"git", "rev-parse", "--short", "HEAD"}},
		{"git_branch", []string{"git", "branch", "--show-current"}},
	}
	for _, q := range queries {
		res := e.run(ctx, q.argv)
		if !res.Success {
			continue
		}
		if v := firstLine(res.StdoutString()); v != "" {
			info.SetString(q.key, v)
		}
	}
}

// countFiles walks the workspace and counts files per configured
// extension. total_files is the sum of those counts.
func (e *Engine) countFiles(info *report.ProjectInfo) {
	metrics := e.cfg().FileExtensions()
	skip := make(map[string]bool)
	for _, name := range e.cfg().SkipDirs() {
		skip[name] = true
	}

	counts := make(map[string]int, len(metrics))
	root := e.Workspace
	if root == "" {
		root = "."
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(d.Name())
		for _, m := range metrics {
			if ext == m.Expr {
				counts[m.Name]++
			}
		}
		return nil
	})

	total := 0
	for _, m := range metrics {
		info.SetInt(m.Name, counts[m.Name])
		total += counts[m.Name]
	}
	info.SetInt("total_files", total)
}
