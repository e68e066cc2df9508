package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ah-its-andy/docconv/internal/engine"
)

// ToolboxOptions configures a Toolbox.
type ToolboxOptions struct {
	// ToolPaths overrides tool discovery ("soffice" -> "/opt/lo/soffice").
	ToolPaths map[string]string
	// Disabled engines never appear in the capability set.
	Disabled []engine.Choice
	// PDFEngine is passed to pandoc for PDF output when set.
	PDFEngine string
	// Font is the TrueType font for direct markdown to PDF layout.
	Font string
	// ProfileRoot holds per-worker office profiles. Defaults to the temp dir.
	ProfileRoot string
	Executor    Executor
	// Engines replaces registry lookups for the given choices.
	Engines map[engine.Choice]Engine
	// Capabilities, when set, skips probing.
	Capabilities *engine.Capabilities
}

// Toolbox is one worker's lazily built set of engine handles. Tool paths are
// probed once on first use and then reused for every job of that worker;
// toolboxes are never shared between workers.
type Toolbox struct {
	worker int
	opts   ToolboxOptions
	exec   Executor

	once sync.Once
	caps engine.Capabilities

	mu      sync.Mutex
	engines map[engine.Choice]Engine
}

// NewToolbox creates the toolbox for worker id.
func NewToolbox(worker int, opts ToolboxOptions) *Toolbox {
	ex := opts.Executor
	if ex == nil {
		ex = DefaultExecutor
	}
	return &Toolbox{worker: worker, opts: opts, exec: ex, engines: make(map[engine.Choice]Engine)}
}

// Worker returns the owning worker id.
func (tb *Toolbox) Worker() int { return tb.worker }

// Capabilities probes the host on first call and caches the result. Engines
// disabled in the registry later still drop out.
func (tb *Toolbox) Capabilities() engine.Capabilities {
	tb.once.Do(func() {
		if tb.opts.Capabilities != nil {
			tb.caps = *tb.opts.Capabilities
			return
		}
		disabled := append(Disabled(), tb.opts.Disabled...)
		tb.caps = engine.Probe(engine.ProbeOptions{
			ToolPaths: tb.opts.ToolPaths,
			Disabled:  disabled,
			PDFRaster: pdfRasterAvailable,
			LookPath:  tb.exec.LookPath,
		})
	})
	if d := Disabled(); len(d) > 0 {
		return tb.caps.Without(d...)
	}
	return tb.caps
}

// Tool returns the resolved path of a tool or an EngineUnavailable error.
func (tb *Toolbox) Tool(name string) (string, error) {
	p := tb.Capabilities().Tools[name]
	if p == "" {
		return "", errToolMissing(name)
	}
	return p, nil
}

// Engine returns the memoized handle for c, building it on first use.
func (tb *Toolbox) Engine(c engine.Choice) (Engine, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if e, ok := tb.engines[c]; ok {
		return e, nil
	}
	if e, ok := tb.opts.Engines[c]; ok {
		tb.engines[c] = e
		return e, nil
	}
	f, ok := Get(c)
	if !ok {
		return nil, fmt.Errorf("engine not registered: %s", c)
	}
	e := f(tb)
	tb.engines[c] = e
	return e, nil
}

// ProfileDir is the worker's private office profile directory. soffice
// refuses to run two instances on one profile, so every worker gets its own.
func (tb *Toolbox) ProfileDir() (string, error) {
	root := tb.opts.ProfileRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "docconv-profiles")
	}
	dir := filepath.Join(root, fmt.Sprintf("w%d-%d", tb.worker, os.Getpid()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create office profile: %w", err)
	}
	return dir, nil
}
