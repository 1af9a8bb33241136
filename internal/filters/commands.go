package filters

import (
	"context"
	"fmt"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/pkg/core/cache"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// Command targets
const (
	TargetInitialize = "filters.Initialize"
	TargetRun        = "filters.Run"
)

// Commands builds the filter chain commands over a set of datasources.
// Managers it creates share Cache when set.
type Commands struct {
	Sources  *datastore.Sources
	Registry *Registry
	Cache    *cache.Cache[Chain]
	Logger   *logging.Logger
}

// Register adds the filter commands to reg.
func (fc *Commands) Register(reg *chain.Registry) error {
	if err := reg.Register(TargetInitialize, func() chain.Command { return chain.Func(initializeDef(), fc.initialize) }); err != nil {
		return err
	}
	return reg.Register(TargetRun, func() chain.Command { return chain.Func(runDef(), fc.run) })
}

func initializeDef() *chain.Definition {
	return chain.Describe("Initialize the filter system.").
		UsesParam("datasource", "Datasource holding the chains. Empty selects the default.").
		UsesParam("collection", "Collection in which filter chains are stored.").
		HasDefault(DefaultCollection).WithFilter("string").
		Returns("A filter manager.")
}

func runDef() *chain.Definition {
	return chain.Describe("Run a value through a filter chain.").
		UsesParam("chain", "Name of the filter chain.").Required().WithFilter("string").
		UsesParam("value", "The value to filter.").Required().WithFilter("string").
		UsesParam("manager", "A filter manager from filters.Initialize. Built from datasource and collection when absent.").
		UsesParam("datasource", "Datasource holding the chains.").
		UsesParam("collection", "Collection in which filter chains are stored.").
		HasDefault(DefaultCollection).WithFilter("string").
		Returns("The filtered string.")
}

// Manager returns a manager for the given datasource and collection.
func (fc *Commands) Manager(datasource, collection string) (*Manager, error) {
	if fc.Sources == nil {
		return nil, verrors.Configuration("filter commands have no datasources")
	}
	ds, err := fc.Sources.Get(datasource)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if datasource == "" {
		datasource = fc.Sources.Default()
	}
	m := NewManager(ds.Collection(collection), fc.Registry, fc.Logger)
	if fc.Cache != nil {
		m.WithCache(fc.Cache, datasource+"/"+collection+"/")
	}
	return m, nil
}

func (fc *Commands) initialize(inv *chain.Invocation) (any, error) {
	return fc.Manager(inv.Params.String("datasource"), inv.Params.String("collection"))
}

func (fc *Commands) run(inv *chain.Invocation) (any, error) {
	m, ok := inv.Params.Get("manager").(*Manager)
	if !ok {
		if inv.Params.Has("manager") {
			return nil, verrors.Validation(inv.Name, "manager",
				fmt.Sprintf("expected a filter manager, got %T", inv.Params.Get("manager")))
		}
		var err error
		m, err = fc.Manager(inv.Params.String("datasource"), inv.Params.String("collection"))
		if err != nil {
			return nil, err
		}
	}
	return m.Run(inv.Ctx(), inv.Params.String("chain"), inv.Params.String("value"))
}

// BindParamFilter makes stored chains usable as parameter filters:
// "chain:safeHTML" runs the safeHTML chain on the resolved value.
func BindParamFilter(pf *chain.ParamFilters, m *Manager) {
	pf.RegisterContext("chain", func(ctx context.Context, value any, name string) (any, error) {
		if name == "" {
			return nil, verrors.Configuration("the chain parameter filter needs a chain name")
		}
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		return m.Run(ctx, name, s)
	})
}
