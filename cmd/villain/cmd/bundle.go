package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/villain-cms/villain/internal/app"
	"github.com/villain-cms/villain/internal/bundles"
)

var bundleForce bool

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Inspect installed bundles",
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered bundles",
	Args:  cobra.NoArgs,
	RunE:  runBundleList,
}

var bundleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the dependencies of every bundle",
	Long: `Checks every bundle's dependencies and conflicts against the others
and reports all failures, not only the first.

With --force the checks are skipped and the bypass is logged.`,
	Args: cobra.NoArgs,
	RunE: runBundleCheck,
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.AddCommand(bundleListCmd, bundleCheckCmd)
	bundleCheckCmd.Flags().BoolVar(&bundleForce, "force", false, "Skip dependency and conflict checks")
}

func loadBundles() (*bundles.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.LoadBundles(cfg, nil)
}

func runBundleList(cmd *cobra.Command, args []string) error {
	bm, err := loadBundles()
	if err != nil {
		printError("load bundles", err)
		return err
	}

	fmt.Println(titleStyle.Render("Bundles"))
	for _, spec := range bm.Bundles() {
		fmt.Printf("  %-16s %-10s %s\n", spec.Name(), spec.GetVersion(), dimStyle.Render(spec.Description()))
		for _, dep := range spec.Dependencies() {
			fmt.Printf("    requires %s\n", describeDependency(dep))
		}
		if virtuals := spec.Virtuals(); len(virtuals) > 0 {
			fmt.Printf("    provides %s\n", strings.Join(virtuals, ", "))
		}
		if conflicts := spec.Conflicts(); len(conflicts) > 0 {
			fmt.Printf("    conflicts with %s\n", strings.Join(conflicts, ", "))
		}
	}
	return nil
}

func describeDependency(dep bundles.Dependency) string {
	parts := []string{dep.Name}
	if dep.Min != "" {
		parts = append(parts, ">= "+dep.Min)
	}
	if dep.Max != "" {
		parts = append(parts, "<= "+dep.Max)
	}
	if len(dep.Not) > 0 {
		parts = append(parts, "not "+strings.Join(dep.Not, ", "))
	}
	return strings.Join(parts, " ")
}

func runBundleCheck(cmd *cobra.Command, args []string) error {
	bm, err := loadBundles()
	if err != nil {
		printError("load bundles", err)
		return err
	}

	err = bm.Initialize(bundleForce)
	failures := bundles.Failures(err)
	if len(failures) == 0 {
		fmt.Println(okStyle.Render(fmt.Sprintf("All %d bundles satisfied", len(bm.Bundles()))))
		return nil
	}

	fmt.Println(errStyle.Render(fmt.Sprintf("%d problem(s) found", len(failures))))
	for _, f := range failures {
		fmt.Printf("  - %v\n", f)
	}
	return err
}
