package datastore

import (
	"sort"
	"sync"

	"go.uber.org/multierr"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Sources is the set of named datastores available to commands. Commands
// that take a datasource parameter look it up here; an empty name selects
// the default.
type Sources struct {
	mu     sync.RWMutex
	stores map[string]Datastore
	def    string
}

// NewSources creates an empty set.
func NewSources() *Sources {
	return &Sources{stores: make(map[string]Datastore)}
}

// Add registers ds under name. The first store added becomes the default
// unless a later one is added with isDefault.
func (s *Sources) Add(name string, ds Datastore, isDefault bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[name] = ds
	if isDefault || s.def == "" {
		s.def = name
	}
}

// Get returns the named store.
func (s *Sources) Get(name string) (Datastore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" {
		name = s.def
	}
	ds, ok := s.stores[name]
	if !ok {
		return nil, verrors.Newf("no datasource named %q", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("datasource", name)
	}
	return ds, nil
}

// Default returns the name of the default store.
func (s *Sources) Default() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// Names lists the registered stores.
func (s *Sources) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for n := range s.stores {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes every store and returns all failures.
func (s *Sources) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, ds := range s.stores {
		err = multierr.Append(err, ds.Close())
	}
	return err
}
