// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     app
// Description: Wires datastores, bundles, commands and the request table
//              into a runnable application
// License:     MIT
// ============================================================================

package app

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/villain-cms/villain/internal/blog"
	"github.com/villain-cms/villain/internal/bundles"
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/cli"
	"github.com/villain-cms/villain/internal/configuration"
	"github.com/villain-cms/villain/internal/content"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/filters"
	"github.com/villain-cms/villain/internal/installer"
	"github.com/villain-cms/villain/internal/metrics"
	"github.com/villain-cms/villain/internal/user"
	"github.com/villain-cms/villain/internal/util"
	"github.com/villain-cms/villain/pkg/core/cache"
	"github.com/villain-cms/villain/pkg/core/config"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/health"
	"github.com/villain-cms/villain/pkg/core/logging"
	"github.com/villain-cms/villain/pkg/core/version"
)

// DefaultSource is the name under which the configured datastore is
// registered.
const DefaultSource = "default"

// App is a fully wired Villain instance.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Sources  *datastore.Sources
	Registry *chain.Registry
	Executor *chain.Executor
	Bundles  *bundles.Manager
	Filters  *filters.Commands
	Tokens   *user.Tokens
	Health   *health.Registry
}

// Options adjusts how New wires the application.
type Options struct {
	// Args are the positional arguments served as arg:N and read by
	// cli.ParseOptions.
	Args []string
	// Datastore replaces the configured datastore.
	Datastore datastore.Datastore
	Logger    *logging.Logger
}

// New opens the datastore, validates the bundles, registers every command
// and loads the request table. A missing request table is not an error:
// the executor then only serves Execute.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("villain")
	}

	ds := opts.Datastore
	if ds == nil {
		var err error
		ds, err = datastore.Open(ctx, cfg.Datastore, logger.Named("datastore"))
		if err != nil {
			return nil, err
		}
	}
	sources := datastore.NewSources()
	sources.Add(DefaultSource, ds, true)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Sources:  sources,
		Registry: chain.NewRegistry(),
		Filters: &filters.Commands{
			Sources:  sources,
			Registry: filters.NewRegistry(),
			Cache: cache.New[filters.Chain](cache.Config{
				TTL: cfg.Filters.CacheTTL.Duration,
			}),
			Logger: logger.Named("filters"),
		},
		Tokens: &user.Tokens{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.General.Name,
			TTL:    cfg.Auth.TokenTTL.Duration,
		},
	}

	bm, err := LoadBundles(cfg, logger.Named("bundles"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := bm.Initialize(cfg.Bundles.Force); err != nil {
		_ = a.Close()
		return nil, verrors.Wrap(err, "bundle validation failed")
	}
	a.Bundles = bm

	if err := a.registerCommands(opts.Args); err != nil {
		_ = a.Close()
		return nil, err
	}

	pf := chain.NewParamFilters()
	fm, err := a.FilterManager()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	filters.BindParamFilter(pf, fm)

	cm, err := metrics.NewChainMetrics(nil)
	if err != nil {
		_ = a.Close()
		return nil, verrors.Wrap(err, "create chain metrics").WithCode(verrors.CodeInternal)
	}

	a.Executor = chain.NewExecutor(a.Registry, nil,
		chain.WithLogger(logger.Named("chain")),
		chain.WithParamFilters(pf),
		chain.WithObserver(cm),
	)
	if err := a.ReloadTable(); err != nil {
		if !verrors.Is(err, fs.ErrNotExist) {
			_ = a.Close()
			return nil, err
		}
		logger.Warn("No request table loaded", "path", a.TablePath())
	}

	a.Health = health.NewRegistry(cfg.General.Name, version.Framework)
	a.Health.Register(health.PingCheck("datastore", ds, 5*time.Second))
	a.Health.Register(health.ErrorCheck("requests", health.StatusDegraded, func(context.Context) error {
		if a.Executor.Table() == nil {
			return verrors.New("no request table loaded")
		}
		return nil
	}))

	return a, nil
}

func (a *App) registerCommands(args []string) error {
	registrars := []interface {
		Register(*chain.Registry) error
	}{
		&content.Commands{Sources: a.Sources, Logger: a.Logger.Named("content")},
		&user.Commands{Sources: a.Sources, Tokens: a.Tokens, Logger: a.Logger.Named("user")},
		&cli.Commands{Args: args},
		&blog.Commands{Filters: a.Filters},
		&installer.Commands{Sources: a.Sources, Filters: a.Filters, Bundles: a.Bundles, Logger: a.Logger.Named("installer")},
		a.Filters,
	}
	for _, r := range registrars {
		if err := r.Register(a.Registry); err != nil {
			return err
		}
	}
	if err := util.Register(a.Registry); err != nil {
		return err
	}
	return configuration.Register(a.Registry)
}

// LoadBundles registers the built-in bundles and the manifests found in
// the configured bundle directory. The manager is not yet initialized.
func LoadBundles(cfg *config.Config, logger *logging.Logger) (*bundles.Manager, error) {
	bm := bundles.NewManager(logger)
	for _, spec := range []*bundles.Specification{bundles.Core(), blog.Bundle()} {
		if err := bm.Add(spec); err != nil {
			return nil, err
		}
	}

	dir := cfg.ResolvePath(cfg.Bundles.Dir)
	if _, err := os.Stat(dir); err != nil {
		if len(cfg.Bundles.Enabled) > 0 {
			return nil, verrors.Wrap(err, "bundle directory").
				WithCode(verrors.CodeConfiguration).
				WithDetail("path", dir)
		}
		return bm, nil
	}
	specs, err := bundles.LoadManifests(dir, cfg.Bundles.Enabled)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := bm.Add(spec); err != nil {
			return nil, err
		}
	}
	return bm, nil
}

// TablePath is the resolved location of the request table.
func (a *App) TablePath() string {
	return a.Config.ResolvePath(a.Config.Requests.Path)
}

// ReloadTable reads the request table again and swaps it in once every
// target it names is registered.
func (a *App) ReloadTable() error {
	tbl, err := chain.LoadTable(a.TablePath())
	if err != nil {
		return err
	}
	if err := tbl.Check(a.Registry); err != nil {
		return err
	}
	a.Executor.SetTable(tbl)
	a.Logger.Info("Request table loaded", "path", a.TablePath(), "requests", len(tbl.RequestNames()))
	return nil
}

// FilterManager returns the manager for the configured filter collection
// of the default datasource.
func (a *App) FilterManager() (*filters.Manager, error) {
	return a.Filters.Manager(DefaultSource, a.Config.Filters.Collection)
}

// Close releases the datastores and stops the chain cache.
func (a *App) Close() error {
	if a.Filters.Cache != nil {
		a.Filters.Cache.Close()
	}
	return a.Sources.Close()
}
