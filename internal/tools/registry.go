package tools

import (
	"sync"

	"connectai/internal/backend"
)

// Registry stores tools by name for discovery and lookup.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds or replaces a tool under its own name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	return names
}

// Declarations builds the setup-time tool declarations for the granted subset.
// Names without a registered tool are skipped; the model should never see a
// capability the process cannot serve.
func (r *Registry) Declarations(granted []string) []backend.ToolDecl {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]backend.ToolDecl, 0, len(granted))
	for _, name := range granted {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		decls = append(decls, backend.ToolDecl{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return decls
}
