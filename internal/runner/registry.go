package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/executor"
)

// Registry maps type tags to implementations.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds or replaces the implementation for t.Name().
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.types[name]; !exists {
		r.order = append(r.order, name)
	}
	r.types[name] = t
}

// Get returns the implementation registered for name.
func (r *Registry) Get(name string) (Type, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownType, name, strings.Join(r.Names(), ", "))
	}
	return t, nil
}

// Names returns the registered type tags, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Detect returns the first registered type, in registration order, whose
// IsType predicate accepts path.
func (r *Registry) Detect(path string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if t := r.types[name]; t.IsType(path) {
			return t, true
		}
	}
	return nil, false
}

// IsLegacy reports whether path holds a legacy (v1) package.
func (r *Registry) IsLegacy(path string) bool {
	t, err := r.Get(TypeLegacy)
	if err != nil {
		return IsLegacyLayout(path)
	}
	return t.IsType(path)
}

// Load resolves spec.Type and loads the package.
func (r *Registry) Load(ctx context.Context, spec Spec) (Instance, error) {
	t, err := r.Get(spec.Type)
	if err != nil {
		return nil, err
	}
	return t.Load(ctx, spec)
}

// NewDefaultRegistry registers the built-in types: legacy, standard and
// external-script. Detection tries them in that order.
func NewDefaultRegistry(env *executor.Env, b *bridge.Bridge) *Registry {
	r := NewRegistry()
	r.Register(NewLegacy(env))
	r.Register(NewStandard(env))
	r.Register(NewScript(b, WithScriptLogger(env.Log)))
	return r
}
