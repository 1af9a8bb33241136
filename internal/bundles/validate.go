package bundles

import (
	"sort"

	"go.uber.org/multierr"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// Registry is a read-only view of installed bundles.
type Registry interface {
	Get(name string) (*Specification, bool)
	Bundles() []*Specification
}

// Snapshot is a Registry over a fixed set of specifications.
type Snapshot map[string]*Specification

// NewSnapshot indexes specs by name.
func NewSnapshot(specs ...*Specification) Snapshot {
	s := make(Snapshot, len(specs))
	for _, spec := range specs {
		s[spec.Name()] = spec
	}
	return s
}

// Get implements Registry
func (s Snapshot) Get(name string) (*Specification, bool) {
	spec, ok := s[name]
	return spec, ok
}

// Bundles implements Registry
func (s Snapshot) Bundles() []*Specification {
	out := make([]*Specification, 0, len(s))
	for _, spec := range s {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Validate checks candidate against the installed bundles in reg. Every
// dependency is checked for presence, minimum, maximum and excluded
// versions; all installed conflicts are reported in one error. The
// returned error combines every failure (see multierr.Errors).
//
// force skips all checks and is logged at warn level.
func Validate(reg Registry, candidate *Specification, force bool, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	name := candidate.Name()

	if force {
		logger.Warn("Bundle validation bypassed with force",
			"bundle", name,
			"dependencies", len(candidate.Dependencies()),
			"conflicts", candidate.Conflicts())
		return nil
	}

	var errs error
	for _, dep := range candidate.Dependencies() {
		errs = multierr.Append(errs, checkDependency(reg, name, dep))
	}

	var found []string
	for _, other := range candidate.Conflicts() {
		if _, ok := reg.Get(other); ok {
			found = append(found, other)
		}
	}
	if len(found) > 0 {
		errs = multierr.Append(errs, verrors.Conflict(name, found))
	}

	if errs != nil {
		logger.Debug("Bundle validation failed", "bundle", name, "failures", len(multierr.Errors(errs)))
	}
	return errs
}

func checkDependency(reg Registry, bundle string, dep Dependency) error {
	installed, ok := reg.Get(dep.Name)
	if !ok {
		if !dep.Constrained() && providedVirtually(reg, dep.Name) {
			return nil
		}
		return verrors.MissingDependency(bundle, dep.Name)
	}

	version := installed.GetVersion()
	var errs error
	if dep.Min != "" {
		cmp, err := CompareVersions(version, dep.Min)
		switch {
		case err != nil:
			errs = multierr.Append(errs, versionError(err, bundle, dep.Name))
		case cmp < 0:
			errs = multierr.Append(errs, verrors.VersionTooOld(bundle, dep.Name, version, dep.Min))
		}
	}
	if dep.Max != "" {
		cmp, err := CompareVersions(version, dep.Max)
		switch {
		case err != nil:
			errs = multierr.Append(errs, versionError(err, bundle, dep.Name))
		case cmp > 0:
			errs = multierr.Append(errs, verrors.VersionTooNew(bundle, dep.Name, version, dep.Max))
		}
	}
	for _, excluded := range dep.Not {
		cmp, err := CompareVersions(version, excluded)
		if err != nil {
			errs = multierr.Append(errs, versionError(err, bundle, dep.Name))
			continue
		}
		if cmp == 0 {
			errs = multierr.Append(errs, verrors.ExcludedVersion(bundle, dep.Name, version))
			break
		}
	}
	return errs
}

func versionError(err error, bundle, dependency string) error {
	return verrors.Wrapf(err, "bundle %q dependency %q", bundle, dependency).
		WithDetail("bundle", bundle).
		WithDetail("dependency", dependency)
}

func providedVirtually(reg Registry, capability string) bool {
	for _, spec := range reg.Bundles() {
		for _, v := range spec.Virtuals() {
			if v == capability {
				return true
			}
		}
	}
	return false
}

// Failures splits a Validate result into its individual errors.
func Failures(err error) []error {
	return multierr.Errors(err)
}
