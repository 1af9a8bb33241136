package bundles

import "github.com/villain-cms/villain/pkg/core/version"

// CoreBundle is the name of the framework's own bundle.
const CoreBundle = "Villain"

// Core capabilities other bundles may depend on
const (
	CapabilityContent = "content"
	CapabilityFilters = "filters"
	CapabilityUsers   = "users"
)

// Core describes the framework itself so that bundles can depend on a
// minimum framework version.
func Core() *Specification {
	return NewSpecification(CoreBundle).
		Describe("Villain content framework").
		Version(version.Framework).
		Provides(CapabilityContent).
		Provides(CapabilityFilters).
		Provides(CapabilityUsers)
}
