// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     installer
// Description: Setup commands that prepare a fresh Villain installation
// License:     MIT
// ============================================================================

package installer

import (
	"github.com/villain-cms/villain/internal/bundles"
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/filters"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// Command targets
const (
	TargetCheckDatastore = "installer.CheckDatastore"
	TargetSeedFilters    = "installer.SeedFilters"
	TargetRecordBundles  = "installer.RecordBundles"
)

// DefaultChains are created by SeedFilters unless a chain with the same
// name already exists.
var DefaultChains = map[string][]filters.Step{
	"plain":   {{Filter: filters.Plaintext}},
	"escaped": {{Filter: filters.EscapeMarkup}},
	"safeHTML": {
		{Filter: filters.WhitelistTags, Arg: filters.DefaultWhitelist},
		{Filter: filters.Trim},
	},
}

// Commands holds what the installer commands operate on.
type Commands struct {
	Sources *datastore.Sources
	Filters *filters.Commands
	Bundles *bundles.Manager
	Logger  *logging.Logger
}

// Register adds the installer commands to reg.
func (ic *Commands) Register(reg *chain.Registry) error {
	if ic.Logger == nil {
		ic.Logger = logging.NewNop()
	}
	factories := map[string]chain.Factory{
		TargetCheckDatastore: func() chain.Command { return chain.Func(checkDatastoreDef(), ic.checkDatastore) },
		TargetSeedFilters:    func() chain.Command { return chain.Func(seedFiltersDef(), ic.seedFilters) },
		TargetRecordBundles:  func() chain.Command { return chain.Func(recordBundlesDef(), ic.recordBundles) },
	}
	for target, factory := range factories {
		if err := reg.Register(target, factory); err != nil {
			return err
		}
	}
	return nil
}

func (ic *Commands) datastore(name string) (datastore.Datastore, error) {
	if ic.Sources == nil {
		return nil, verrors.Configuration("installer has no datasources")
	}
	return ic.Sources.Get(name)
}
