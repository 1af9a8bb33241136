package bundles

import (
	"regexp"
	"sort"
	"sync"

	"go.uber.org/multierr"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidName reports whether name may be used as a bundle name.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// Manager holds the bundles of one process. Bundles are added during the
// registration phase; Freeze ends it.
type Manager struct {
	mu      sync.RWMutex
	bundles map[string]*Specification
	frozen  bool
	logger  *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{bundles: make(map[string]*Specification), logger: logger}
}

// Create registers a new specification and returns it for configuration.
func (m *Manager) Create(name string) (*Specification, error) {
	spec := NewSpecification(name)
	if err := m.Add(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Add registers spec. Names must be unique and valid.
func (m *Manager) Add(spec *Specification) error {
	name := spec.Name()
	if !ValidName(name) {
		return verrors.Newf("invalid bundle name %q", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return verrors.Newf("cannot add bundle %q after registration closed", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", name)
	}
	if _, exists := m.bundles[name]; exists {
		return verrors.Newf("bundle %q is already registered", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", name)
	}
	m.bundles[name] = spec
	m.logger.Debug("Bundle registered", "bundle", name)
	return nil
}

// Has reports whether a bundle is registered.
func (m *Manager) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Get implements Registry
func (m *Manager) Get(name string) (*Specification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.bundles[name]
	return spec, ok
}

// Bundles implements Registry; specifications are sorted by name.
func (m *Manager) Bundles() []*Specification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Specification, 0, len(m.bundles))
	for _, spec := range m.bundles {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Freeze ends the registration phase and freezes every specification.
func (m *Manager) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
	for _, spec := range m.bundles {
		spec.Freeze()
	}
}

// Validate checks one registered bundle against all the others.
func (m *Manager) Validate(name string, force bool) error {
	spec, ok := m.Get(name)
	if !ok {
		return verrors.Newf("no bundle named %q", name).
			WithCode(verrors.CodeNotFound).
			WithDetail("bundle", name)
	}
	if err := spec.Err(); err != nil {
		return err
	}
	return Validate(m.others(name), spec, force, m.logger)
}

func (m *Manager) others(name string) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(Snapshot, len(m.bundles))
	for n, spec := range m.bundles {
		if n != name {
			s[n] = spec
		}
	}
	return s
}

// Initialize freezes the manager and validates every bundle in name order.
// All failures are returned together.
func (m *Manager) Initialize(force bool) error {
	m.Freeze()
	var errs error
	for _, spec := range m.Bundles() {
		errs = multierr.Append(errs, m.Validate(spec.Name(), force))
	}
	if errs == nil {
		m.logger.Info("Bundles initialized", "count", len(m.Bundles()))
	}
	return errs
}
