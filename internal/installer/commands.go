package installer

import (
	"sort"

	"github.com/villain-cms/villain/internal/bundles"
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/filters"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

func checkDatastoreDef() *chain.Definition {
	return chain.Describe("Verify that a datasource is reachable.").
		UsesParam("datasource", "Datasource to check. Empty selects the default.").WithFilter("string").
		Returns("true when the datasource answered.")
}

func seedFiltersDef() *chain.Definition {
	return chain.Describe("Create the default filter chains.").
		UsesParam("datasource", "Datasource holding the chains.").WithFilter("string").
		UsesParam("collection", "Collection in which filter chains are stored.").
		HasDefault(filters.DefaultCollection).WithFilter("string").
		Returns("The names of the chains that were created.")
}

func recordBundlesDef() *chain.Definition {
	return chain.Describe("Persist the metadata of every registered bundle.").
		UsesParam("datasource", "Datasource for bundle metadata.").WithFilter("string").
		UsesParam("collection", "Collection for bundle metadata.").
		HasDefault(bundles.Collection).WithFilter("string").
		Returns("The names of the recorded bundles.")
}

func (ic *Commands) checkDatastore(inv *chain.Invocation) (any, error) {
	name := inv.Params.String("datasource")
	ds, err := ic.datastore(name)
	if err != nil {
		return nil, err
	}
	if err := ds.Ping(inv.Ctx()); err != nil {
		return nil, verrors.StorageOperation(inv.Target, err).WithDetail("datasource", name)
	}
	inv.Logger.Info("Datastore reachable", "datasource", name)
	return true, nil
}

func (ic *Commands) seedFilters(inv *chain.Invocation) (any, error) {
	if ic.Filters == nil {
		return nil, verrors.Configuration("installer has no filter commands")
	}
	m, err := ic.Filters.Manager(inv.Params.String("datasource"), inv.Params.String("collection"))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(DefaultChains))
	for name := range DefaultChains {
		names = append(names, name)
	}
	sort.Strings(names)

	created := []string{}
	for _, name := range names {
		exists, err := m.HasChain(inv.Ctx(), name)
		if err != nil {
			return nil, err
		}
		if exists {
			inv.Logger.Debug("Filter chain already present", "chain", name)
			continue
		}
		if err := m.AddChain(inv.Ctx(), name, DefaultChains[name], false); err != nil {
			return nil, err
		}
		created = append(created, name)
	}
	inv.Logger.Info("Filter chains seeded", "created", created)
	return created, nil
}

func (ic *Commands) recordBundles(inv *chain.Invocation) (any, error) {
	if ic.Bundles == nil {
		return nil, verrors.Configuration("installer has no bundle manager")
	}
	ds, err := ic.datastore(inv.Params.String("datasource"))
	if err != nil {
		return nil, err
	}
	store := bundles.NewStore(ds.Collection(inv.Params.String("collection")))

	recorded := []string{}
	for _, spec := range ic.Bundles.Bundles() {
		if err := store.Save(inv.Ctx(), spec); err != nil {
			return nil, err
		}
		recorded = append(recorded, spec.Name())
	}
	inv.Logger.Info("Bundles recorded", "bundles", recorded)
	return recorded, nil
}
