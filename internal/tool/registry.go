package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry resolves a tool name to the backend that owns it, applying the
// precedence from §4.5: a session-scoped override beats an MCP
// registration, which beats a workspace-published tool, which beats a
// builtin local tool. Backends are registered in precedence order — lowest
// precedence first — and Resolve walks them in reverse registration order,
// returning the first match, so the most specific owner wins (mirrors
// telnet2-opencode's registry.go, which registers builtins first and lets
// callers layer task/session tools on after).
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

// NewRegistry returns an empty registry. Register backends least-specific
// first (builtin local, then workspace, then MCP, then any session
// override) so Resolve's reverse walk finds the most specific owner.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a backend. Order matters — see NewRegistry.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// Resolve finds the backend that should handle name, walking registered
// backends from most to least recently added.
func (r *Registry) Resolve(ctx context.Context, name string) (Backend, bool, error) {
	r.mu.RLock()
	backends := append([]Backend(nil), r.backends...)
	r.mu.RUnlock()

	for i := len(backends) - 1; i >= 0; i-- {
		defs, err := backends[i].Definitions(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("tool: listing definitions from backend %q: %w", backends[i].Name(), err)
		}
		for _, d := range defs {
			if d.Name == name {
				return backends[i], true, nil
			}
		}
	}
	return nil, false, nil
}

// Definitions returns the resolved, de-duplicated (by name, most-specific
// backend wins) tool list across every registered backend, sorted by name
// for stable presentation to the provider.
func (r *Registry) Definitions(ctx context.Context) ([]Definition, error) {
	r.mu.RLock()
	backends := append([]Backend(nil), r.backends...)
	r.mu.RUnlock()

	byName := make(map[string]Definition)
	for _, b := range backends {
		defs, err := b.Definitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool: listing definitions from backend %q: %w", b.Name(), err)
		}
		for _, d := range defs {
			byName[d.Name] = d // later (more specific) backend overwrites
		}
	}
	out := make([]Definition, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Definition looks up one tool's declared schema/approval default, used by
// the session actor to decide Known/RequiresApproval before asking the
// executor to actually run anything.
func (r *Registry) Definition(ctx context.Context, name string) (Definition, bool, error) {
	b, ok, err := r.Resolve(ctx, name)
	if err != nil || !ok {
		return Definition{}, ok, err
	}
	defs, err := b.Definitions(ctx)
	if err != nil {
		return Definition{}, false, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, true, nil
		}
	}
	return Definition{}, false, nil
}
