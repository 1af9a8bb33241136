package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/filters"
	"github.com/villain-cms/villain/pkg/core/logging"
)

var filterOverwrite bool

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Manage stored filter chains",
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filter chains and available filters",
	Args:  cobra.NoArgs,
	RunE:  runFilterList,
}

var filterRunCmd = &cobra.Command{
	Use:   "run <chain> <value>",
	Short: "Run a value through a filter chain",
	Args:  cobra.ExactArgs(2),
	RunE:  runFilterRun,
}

var filterAddCmd = &cobra.Command{
	Use:   "add <chain> <filter[=arg]>...",
	Short: "Store a filter chain",
	Long: `Stores a chain of filters under a name. Each step is a filter id,
optionally followed by =arg.

Example:
  villain filter add teaser plaintext shorten=140`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFilterAdd,
}

var filterRemoveCmd = &cobra.Command{
	Use:   "remove <chain>",
	Short: "Remove a filter chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilterRemove,
}

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.AddCommand(filterListCmd, filterRunCmd, filterAddCmd, filterRemoveCmd)
	filterAddCmd.Flags().BoolVar(&filterOverwrite, "overwrite", false, "Replace an existing chain")
}

func withFilters(fn func(ctx context.Context, m *filters.Manager) error) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	logger := logging.New("villain")
	ds, err := datastore.Open(ctx, cfg.Datastore, logger.Named("datastore"))
	if err != nil {
		printError("open datastore", err)
		return err
	}
	defer ds.Close()

	m := filters.NewManager(ds.Collection(cfg.Filters.Collection), filters.NewRegistry(), logger.Named("filters"))
	if err := fn(ctx, m); err != nil {
		printError("filter", err)
		return err
	}
	return nil
}

func runFilterList(cmd *cobra.Command, args []string) error {
	return withFilters(func(ctx context.Context, m *filters.Manager) error {
		chains, err := m.Chains(ctx)
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Filter chains"))
		if len(chains) == 0 {
			fmt.Println(dimStyle.Render("  none stored, run villain install"))
		}
		for _, c := range chains {
			fmt.Printf("  %s\n", c.String())
		}
		fmt.Println()
		fmt.Println(titleStyle.Render("Filters"))
		fmt.Printf("  %s\n", strings.Join(m.Registry().Names(), ", "))
		return nil
	})
}

func runFilterRun(cmd *cobra.Command, args []string) error {
	return withFilters(func(ctx context.Context, m *filters.Manager) error {
		out, err := m.Run(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func runFilterAdd(cmd *cobra.Command, args []string) error {
	return withFilters(func(ctx context.Context, m *filters.Manager) error {
		if err := m.AddChain(ctx, args[0], filters.ParseSteps(args[1:]), filterOverwrite); err != nil {
			return err
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("Stored filter chain %q", args[0])))
		return nil
	})
}

func runFilterRemove(cmd *cobra.Command, args []string) error {
	return withFilters(func(ctx context.Context, m *filters.Manager) error {
		m.RemoveChain(ctx, args[0])
		fmt.Println(okStyle.Render(fmt.Sprintf("Removed filter chain %q", args[0])))
		return nil
	})
}
