// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     bundles
// Description: Bundle specifications, dependency validation and persistence
// License:     MIT
// ============================================================================

// Package bundles describes versioned extension packages and validates that
// a set of them can be activated together.
package bundles

import (
	"fmt"
	"sort"
	"sync"

	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// SpecificationType is the storable discriminator of Specification.
const SpecificationType = "bundles.Specification"

func init() {
	storage.RegisterType(SpecificationType, func() storage.Storable { return &Specification{} })
}

// Dependency is one declared requirement of a bundle. Empty Min and Max
// mean unbounded.
type Dependency struct {
	Name string
	Min  string
	Max  string
	Not  []string
}

// Constrained reports whether the dependency carries any version rule.
func (d Dependency) Constrained() bool {
	return d.Min != "" || d.Max != "" || len(d.Not) > 0
}

// Specification declares a bundle. It is mutable during registration and
// read-only once frozen.
type Specification struct {
	mu           sync.RWMutex
	name         string
	version      string
	description  string
	dependencies map[string]Dependency
	virtuals     []string
	conflicts    []string
	frozen       bool
	err          error
}

// NewSpecification starts a specification for name.
func NewSpecification(name string) *Specification {
	return &Specification{name: name, dependencies: make(map[string]Dependency)}
}

// StorableType implements storage.Typed
func (s *Specification) StorableType() string { return SpecificationType }

func (s *Specification) mutate(fn func()) *Specification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		if s.err == nil {
			s.err = verrors.Newf("bundle %q is frozen", s.name).
				WithCode(verrors.CodeConfiguration).
				WithDetail("bundle", s.name)
		}
		return s
	}
	fn()
	return s
}

// Describe sets the free-text description.
func (s *Specification) Describe(summary string) *Specification {
	return s.mutate(func() { s.description = summary })
}

// Version sets the bundle version.
func (s *Specification) Version(v string) *Specification {
	return s.mutate(func() { s.version = v })
}

// DependsOn declares a dependency. min and max may be empty; exclude lists
// versions that must not be installed.
func (s *Specification) DependsOn(name, min, max string, exclude ...string) *Specification {
	return s.mutate(func() {
		s.dependencies[name] = Dependency{Name: name, Min: min, Max: max, Not: append([]string(nil), exclude...)}
	})
}

// Provides declares a virtual capability this bundle satisfies.
func (s *Specification) Provides(virtual string) *Specification {
	return s.mutate(func() {
		for _, v := range s.virtuals {
			if v == virtual {
				return
			}
		}
		s.virtuals = append(s.virtuals, virtual)
	})
}

// IncompatibleWith declares a bundle that must not be installed alongside.
func (s *Specification) IncompatibleWith(name string) *Specification {
	return s.mutate(func() { s.conflicts = append(s.conflicts, name) })
}

// Freeze ends the registration phase.
func (s *Specification) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Frozen reports whether Freeze was called.
func (s *Specification) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Err returns the first mutation attempted after Freeze, if any.
func (s *Specification) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Name returns the bundle name
func (s *Specification) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// GetVersion returns the bundle version
func (s *Specification) GetVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Description returns the description
func (s *Specification) Description() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.description
}

// Dependencies returns the dependencies sorted by name.
func (s *Specification) Dependencies() []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dependency, 0, len(s.dependencies))
	for _, d := range s.dependencies {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Virtuals returns the provided capabilities
func (s *Specification) Virtuals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.virtuals...)
}

// Conflicts returns the incompatible bundle names
func (s *Specification) Conflicts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.conflicts...)
}

// ToMap returns the persisted form:
// {name, version, description, virtuals[], dependencies{name:{min,max,not[]}}, conflicts[]}.
func (s *Specification) ToMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deps := make(map[string]any, len(s.dependencies))
	for name, d := range s.dependencies {
		not := make([]any, len(d.Not))
		for i, v := range d.Not {
			not[i] = v
		}
		deps[name] = map[string]any{"min": d.Min, "max": d.Max, "not": not}
	}
	return map[string]any{
		"name":         s.name,
		"version":      s.version,
		"description":  s.description,
		"virtuals":     toAnySlice(s.virtuals),
		"dependencies": deps,
		"conflicts":    toAnySlice(s.conflicts),
	}
}

// FromMap restores a specification from its persisted form. The result is
// frozen. A frozen specification, or one already named differently, is left
// unchanged and an error is returned.
func (s *Specification) FromMap(data map[string]any) error {
	name, ok := data["name"].(string)
	if !ok || name == "" {
		return verrors.New("bundle record has no name").WithCode(verrors.CodeInvalidInput)
	}

	deps := make(map[string]Dependency)
	switch raw := data["dependencies"].(type) {
	case nil:
	case map[string]any:
		for dep, v := range raw {
			d := Dependency{Name: dep}
			if m, ok := v.(map[string]any); ok {
				d.Min = stringOf(m["min"])
				d.Max = stringOf(m["max"])
				d.Not = toStrings(m["not"])
			}
			deps[dep] = d
		}
	default:
		return verrors.Newf("bundle %q: dependencies must be a map, got %T", name, raw).
			WithCode(verrors.CodeInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return verrors.Newf("bundle %q is frozen", s.name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", s.name)
	}
	if s.name != "" && s.name != name {
		return verrors.Newf("cannot load bundle %q into specification %q", name, s.name).
			WithCode(verrors.CodeInvalidInput).
			WithDetail("bundle", s.name)
	}
	s.name = name
	s.version, _ = data["version"].(string)
	s.description, _ = data["description"].(string)
	s.virtuals = toStrings(data["virtuals"])
	s.conflicts = toStrings(data["conflicts"])
	s.dependencies = deps
	s.frozen = true
	return nil
}

// String implements fmt.Stringer
func (s *Specification) String() string {
	return fmt.Sprintf("%s %s", s.Name(), s.GetVersion())
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		var out []string
		for _, item := range list {
			if s := stringOf(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		// older records keyed virtuals by name
		out := make([]string, 0, len(list))
		for k := range list {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	return nil
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
