package converter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ah-its-andy/docconv/internal/engine"
)

// Factory builds an engine bound to one worker's toolbox.
type Factory func(tb *Toolbox) Engine

var (
	registry = make(map[engine.Choice]Factory)
	mu       sync.RWMutex
	disabled = make(map[engine.Choice]bool)
)

// Register registers an engine factory in the global registry
func Register(c engine.Choice, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[c] = f
}

// Get retrieves a factory by engine name
func Get(c engine.Choice) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[c]
	return f, ok
}

// List returns the registered engine names, sorted.
func List() []engine.Choice {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]engine.Choice, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ListInfo combines the registry with a probed capability set.
func ListInfo(caps engine.Capabilities) []EngineInfo {
	names := List()
	infos := make([]EngineInfo, 0, len(names))
	for _, c := range names {
		infos = append(infos, EngineInfo{
			Name:      c,
			Available: caps.Available[c],
			Enabled:   IsEnabled(c),
		})
	}
	return infos
}

// Enable enables an engine by name
func Enable(c engine.Choice) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registry[c]; !ok {
		return fmt.Errorf("engine not found: %s", c)
	}

	delete(disabled, c)
	return nil
}

// Disable disables an engine by name. Disabled engines drop out of every
// capability set probed afterwards.
func Disable(c engine.Choice) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registry[c]; !ok {
		return fmt.Errorf("engine not found: %s", c)
	}

	disabled[c] = true
	return nil
}

// IsEnabled checks if an engine is enabled
func IsEnabled(c engine.Choice) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !disabled[c]
}

// Disabled lists the currently disabled engines.
func Disabled() []engine.Choice {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]engine.Choice, 0, len(disabled))
	for c := range disabled {
		out = append(out, c)
	}
	return out
}
