package workflow

import (
	"context"
	"os"
	"path/filepath"
)

// checkStructure verifies that every required directory and file exists
// relative to the workspace. Each missing path is reported.
func (e *Engine) checkStructure(_ context.Context, d *Diagnostics) (bool, error) {
	ok := true
	for _, dir := range e.cfg().RequiredDirs() {
		if e.exists(dir) {
			d.Passf("%s/", dir)
			continue
		}
		d.Failf("%s/ (missing)", dir)
		ok = false
	}
	for _, file := range e.cfg().RequiredFiles() {
		if e.exists(file) {
			d.Passf("%s", file)
			continue
		}
		d.Failf("%s (missing)", file)
		ok = false
	}
	return ok, nil
}

func (e *Engine) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(e.Workspace, rel))
	return err == nil
}
