package scanner

import (
	"fmt"
	"sync"

	"github.com/ChrisB0-2/purge/internal/core"
)

// Factory builds a Source from runtime dependencies.
type Factory func(deps Deps) core.Source

// Registry maps scanner names to factories, in registration order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register scanner: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("register scanner: duplicate name %q", name)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names lists registered scanners in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Build instantiates one scanner as a Unit.
func (r *Registry) Build(name string, cfg core.ScannerConfig, deps Deps) (*Unit, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownScanner, name)
	}
	deps = deps.withDefaults()
	return NewUnit(f(deps), cfg, deps), nil
}

// BuildAll instantiates every registered scanner, in registration order,
// with the configuration cfgFor returns for its name.
func (r *Registry) BuildAll(cfgFor func(name string) core.ScannerConfig, deps Deps) []*Unit {
	deps = deps.withDefaults()
	names := r.Names()
	units := make([]*Unit, 0, len(names))
	for _, name := range names {
		cfg := core.DefaultScannerConfig()
		if cfgFor != nil {
			cfg = cfgFor(name)
		}
		u, err := r.Build(name, cfg, deps)
		if err != nil {
			continue
		}
		units = append(units, u)
	}
	return units
}
