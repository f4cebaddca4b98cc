// Package registry aggregates tool providers and hands out the per-route
// toolsets the engine's tool loop runs against.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rhuss/homebrain/pkg/tools"
)

// Registry indexes the tools of every registered provider by name.
type Registry struct {
	mu sync.RWMutex
	// providers stores registered providers in insertion order.
	providers []tools.Provider
	// byName maps tool name to the tool and the provider that owns it.
	byName map[string]entry
}

type entry struct {
	tool     tools.Tool
	provider string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]entry)}
}

// Register adds a provider. Tool names are first come, first served: if
// two providers supply the same name, the first registered wins and a
// warning is logged.
func (r *Registry) Register(p tools.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	ts := p.Tools()
	for _, t := range ts {
		if existing, ok := r.byName[t.Name()]; ok {
			slog.Warn("tool name conflict, keeping first provider",
				"tool", t.Name(),
				"winner", existing.provider,
				"loser", p.Name(),
			)
			continue
		}
		r.byName[t.Name()] = entry{tool: t, provider: p.Name()}
	}

	slog.Info("registered tool provider",
		"provider", p.Name(),
		"kind", p.Kind().String(),
		"tools", len(ts),
	)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e.tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Toolset binds the named tools, in the given order. Names with no
// registered tool are skipped with a warning so that an unreachable MCP
// server degrades a route instead of failing startup. The returned
// toolset is empty (not nil) when nothing resolves.
func (r *Registry) Toolset(names []string) *tools.Toolset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := make([]tools.Tool, 0, len(names))
	for _, n := range names {
		e, ok := r.byName[n]
		if !ok {
			slog.Warn("configured tool is not registered", "tool", n)
			continue
		}
		resolved = append(resolved, e.tool)
	}
	return tools.NewToolset(resolved...)
}

// Close closes all registered providers, returning the last error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close tool provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
