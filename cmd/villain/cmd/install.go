package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/installer"
)

// installRequest is run by villain install when the request table has it.
const installRequest = "@install"

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Prepare the datastore for a new installation",
	Long: `Checks that the datastore is reachable, creates the default filter
chains (plain, escaped, safeHTML) and records the metadata of every bundle.

When the request table defines @install that request runs instead.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, nil)
	if err != nil {
		printError("startup failed", err)
		return err
	}
	defer a.Close()

	var c *chain.Context
	if tbl := a.Executor.Table(); tbl != nil && tbl.Has(installRequest) {
		c, err = a.Executor.Run(ctx, installRequest, nil)
	} else {
		c = chain.NewContext(ctx)
		err = a.Executor.Execute(c, []chain.CommandSpec{
			{Name: "datastore", Target: installer.TargetCheckDatastore},
			{Name: "filters", Target: installer.TargetSeedFilters},
			{Name: "bundles", Target: installer.TargetRecordBundles},
		}, nil)
	}
	if err != nil {
		printError("install failed", err)
		return err
	}

	fmt.Println(titleStyle.Render("Villain installed"))
	if created, ok := c.Get("filters").([]string); ok {
		fmt.Printf("  filter chains created: %d %s\n", len(created), dimStyle.Render(fmt.Sprint(created)))
	}
	if recorded, ok := c.Get("bundles").([]string); ok {
		fmt.Printf("  bundles recorded:      %d %s\n", len(recorded), dimStyle.Render(fmt.Sprint(recorded)))
	}
	return nil
}
