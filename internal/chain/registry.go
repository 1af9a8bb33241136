package chain

import (
	"fmt"
	"sync"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Registry maps invoke targets such as "content.Load" to command factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a target twice is an error.
func (r *Registry) Register(target string, f Factory) error {
	if target == "" || f == nil {
		return verrors.New("target and factory are required").WithCode(verrors.CodeInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[target]; exists {
		return verrors.Configuration(fmt.Sprintf("command target %q already registered", target)).
			WithDetail("target", target)
	}
	r.factories[target] = f
	return nil
}

// MustRegister is Register for wiring code that cannot recover.
func (r *Registry) MustRegister(target string, f Factory) {
	if err := r.Register(target, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for target.
func (r *Registry) Lookup(target string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[target]
	return f, ok
}

// Targets lists the registered targets, sorted.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.factories)
}

// Describe returns the definition of a registered command.
func (r *Registry) Describe(target string) (*Definition, bool) {
	f, ok := r.Lookup(target)
	if !ok {
		return nil, false
	}
	return f().Expects(), true
}

func (r *Registry) checkTargets(specs []CommandSpec) error {
	for _, s := range specs {
		if _, ok := r.Lookup(s.Target); !ok {
			return verrors.Configuration(fmt.Sprintf("command %q invokes unknown target %q", s.Name, s.Target)).
				WithDetail("command", s.Name).
				WithDetail("target", s.Target)
		}
	}
	return nil
}
