package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/happyrust/preflight/internal/report"
)

// checkBinding confirms the interpreter can import its standard modules,
// then tries the project's own binding. A missing binding is expected
// before the first build and does not fail the stage.
func (e *Engine) checkBinding(ctx context.Context, d *Diagnostics) (bool, error) {
	cfg := e.cfg()
	py := cfg.Python()

	for _, mod := range cfg.StdModules() {
		res := e.run(ctx, []string{py, "-c", "import " + mod})
		if !res.Success {
			d.Failf("%s (import failed)", mod)
			if msg := lastLine(res.StderrString()); msg != "" {
				d.Detail(report.Info, "%s", msg)
			}
			return false, nil
		}
		d.Passf("%s", mod)
	}

	module := cfg.BindingModule()
	res := e.run(ctx, []string{py, "-c", bindingImport(cfg.BindingPath(), module)})
	if res.Success {
		d.Passf("%s (binding)", module)
		return true, nil
	}
	d.Warnf("%s binding not built yet (expected before the first build)", module)
	if msg := lastLine(res.StderrString()); msg != "" {
		d.Detail(report.Info, "%s", msg)
	}
	return true, nil
}

// bindingImport returns the interpreter snippet that puts path first on
// the import path and imports module.
func bindingImport(path, module string) string {
	return fmt.Sprintf("import sys; sys.path.insert(0, %s); import %s", strconv.Quote(path), module)
}
