package ecosystem

import (
	"fmt"
	"sort"
	"sync"
)

// Adapter plans and inspects projects of one ecosystem.
type Adapter interface {
	Kind() Kind
	Signature() Signature
	// Plan selects the tool and commands for desc. dir is the absolute
	// directory of the descriptor inside the staged workspace.
	Plan(dir string, desc *BuildDescriptor) error
	// Dependencies lists the declared dependencies of the project in dir.
	Dependencies(dir string) ([]Dependency, error)
}

// Registry maps each Kind to its Adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Kind]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in adapters.
func DefaultRegistry() *Registry {
	return NewRegistry(
		GoAdapter{},
		RustAdapter{},
		NodeAdapter{},
		PythonAdapter{},
		MavenAdapter{},
		GradleAdapter{},
	)
}

// Register adds or replaces the adapter for a.Kind().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for k.
func (r *Registry) Lookup(k Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[k]
	return a, ok
}

// Adapters returns the registered adapters in tie-break priority order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Kind().Priority(), out[j].Kind().Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Kind() < out[j].Kind()
	})
	return out
}

// Plan fills desc's tool and commands using its kind's adapter.
func (r *Registry) Plan(dir string, desc *BuildDescriptor) error {
	a, ok := r.Lookup(desc.Kind)
	if !ok {
		return fmt.Errorf("no adapter registered for %s", desc.Kind)
	}
	return a.Plan(dir, desc)
}
