// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     filters
// Description: Named, persisted chains of string transformers
// License:     MIT
// ============================================================================

// Package filters applies named, ordered sequences of stateless string
// transformers. Chains are stored in a datastore collection so that sites
// can change how user input is cleaned without a redeploy.
package filters

import (
	"fmt"
	"sort"
	"sync"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Filter transforms a string.
type Filter interface {
	Run(value string) string
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(string) string

// Run implements Filter
func (f FilterFunc) Run(value string) string { return f(value) }

// Constructor builds a filter from its stored init argument.
type Constructor func(arg any) (Filter, error)

// Registry maps transformer identifiers to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in transformers.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a transformer.
func (r *Registry) Register(id string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[id] = c
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[id]
	return ok
}

// Names lists the registered identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// New instantiates transformer id with arg.
func (r *Registry) New(id string, arg any) (Filter, error) {
	r.mu.RLock()
	c, ok := r.constructors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, verrors.Newf("unknown filter %q", id).
			WithCode(verrors.CodeConfiguration).
			WithDetail("filter", id)
	}
	f, err := c(arg)
	if err != nil {
		return nil, verrors.Wrapf(err, "filter %q", id).
			WithCode(verrors.CodeConfiguration).
			WithDetail("filter", id)
	}
	return f, nil
}

// checkArg enforces that init arguments can be stored: scalars, lists of
// scalars, maps of scalars or nil.
func checkArg(arg any) error {
	if isScalar(arg) {
		return nil
	}
	switch v := arg.(type) {
	case []any:
		for _, item := range v {
			if !isScalar(item) {
				return fmt.Errorf("list items must be scalars, got %T", item)
			}
		}
		return nil
	case []string:
		return nil
	case map[string]any:
		for k, item := range v {
			if !isScalar(item) {
				return fmt.Errorf("map value %q must be a scalar, got %T", k, item)
			}
		}
		return nil
	case map[string]string:
		return nil
	}
	return fmt.Errorf("unsupported init argument type %T", arg)
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}
