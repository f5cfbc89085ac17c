package agent

import (
	"sort"
	"sync"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// Registry is the thread-safe mapping of node codes to invokers.
// Invokers register by name; bindings route a node's symbolic code to a
// registered invoker, with an optional default for unbound codes.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
	bindings map[string]string // node code -> invoker name
	fallback string            // default invoker name, "" = none
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[string]Invoker),
		bindings: make(map[string]string),
	}
}

// Register adds an invoker. Returns CONFLICT on duplicate name.
func (r *Registry) Register(inv Invoker) error {
	if inv == nil {
		return schema.NewError(schema.ErrCodeValidation, "invoker is nil")
	}
	name := inv.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "invoker name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invokers[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "invoker %q already registered", name)
	}
	r.invokers[name] = inv
	return nil
}

// Bind routes a node code to a registered invoker.
func (r *Registry) Bind(code, invokerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invokers[invokerName]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "invoker %q not registered", invokerName)
	}
	r.bindings[code] = invokerName
	return nil
}

// SetFallback names the invoker used for codes with no explicit binding.
func (r *Registry) SetFallback(invokerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invokers[invokerName]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "invoker %q not registered", invokerName)
	}
	r.fallback = invokerName
	return nil
}

// Resolve returns the invoker bound to a node code.
func (r *Registry) Resolve(code string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.bindings[code]
	if !ok {
		name = r.fallback
	}
	if name == "" {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no invoker bound to code %q", code)
	}
	inv, ok := r.invokers[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "invoker %q not registered", name)
	}
	return inv, nil
}

// Has reports whether Resolve would find an invoker for the code.
func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.bindings[code]
	if !ok {
		name = r.fallback
	}
	_, ok = r.invokers[name]
	return ok
}

// Compensator returns the compensating capability of the named invoker, or
// nil if the invoker does not expose one.
func (r *Registry) Compensator(invokerName string) Compensator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invokers[invokerName]
	if !ok {
		return nil
	}
	comp, ok := inv.(Compensator)
	if !ok {
		return nil
	}
	return comp
}

// List returns the names of all registered invokers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
