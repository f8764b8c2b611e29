package tools

import (
	"sync"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// Registry is an ordered, concurrency-safe interfaces.ToolRegistry.
// Registering a name twice replaces the earlier tool in place.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]interfaces.Tool
}

var _ interfaces.ToolRegistry = (*Registry)(nil)

// NewRegistry creates a registry holding tools
func NewRegistry(tools ...interfaces.Tool) *Registry {
	r := &Registry{tools: make(map[string]interfaces.Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register implements interfaces.ToolRegistry
func (r *Registry) Register(tool interfaces.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get implements interfaces.ToolRegistry
func (r *Registry) Get(name string) (interfaces.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// List implements interfaces.ToolRegistry. Tools come back in registration
// order.
func (r *Registry) List() []interfaces.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]interfaces.Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}
