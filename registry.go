package toolloop

import (
	"slices"
	"sync"
)

// Registry is a mutable, concurrency-safe set of tools. It implements ToolSource, so it can be
// passed to WithToolSource as the loop's supplementary tool set; the loop reads it once per round.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool // wrapped with middlewares, returned by Tools and Get
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	middlewares []ToolMiddleware
}

// NewRegistry creates a Registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool. Stored middlewares (see Use) are applied to invocable tools before registration.
// If a tool with the same name already exists, it is replaced. Nil tools are ignored.
func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	r.rawTools[name] = t
	r.tools[name] = wrapTool(t, r.middlewares)
}

// Unregister removes the named tool and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rawTools[name]
	delete(r.rawTools, name)
	delete(r.tools, name)
	return ok
}

// Get returns the tool with the given name (after middlewares are applied), or (nil, false) if not found.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns a snapshot of all registered tools, sorted by name for deterministic order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Use stores the given middlewares and reapplies them from scratch to all registered tools (onion order:
// first middleware is outermost). Tools registered after Use will also get these middlewares applied.
// Calling Use multiple times replaces the middleware chain and rewraps from raw tools, avoiding double-wrapping.
func (r *Registry) Use(middlewares ...ToolMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = wrapTool(raw, middlewares)
	}
}

// wrapTool applies middlewares to invocable tools; declarations are returned unchanged.
func wrapTool(t Tool, middlewares []ToolMiddleware) Tool {
	inv, ok := t.(Invoker)
	if !ok {
		return t
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		inv = middlewares[i](inv)
	}
	return inv
}

var _ ToolSource = (*Registry)(nil)
