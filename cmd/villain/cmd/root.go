package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/villain-cms/villain/internal/app"
	"github.com/villain-cms/villain/pkg/core/config"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

var (
	cfgFile string
	verbose bool
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var rootCmd = &cobra.Command{
	Use:   "villain",
	Short: "Villain - command chain content framework",
	Long: `Villain runs requests: named chains of commands declared in a
request table. Commands load and store content, run filter chains and
manage users, bundles and configuration.

Requests can be run once from the command line or served over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $VILLAIN_CONFIG or ./configs/villain.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.General.LogLevel
	if verbose {
		level = "debug"
	}
	logging.SetDefaults(level, cfg.General.LogFormat, os.Stderr)
	return cfg, nil
}

func openApp(ctx context.Context, args []string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{Args: args})
}

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("Error: %s: %v", msg, err)))
	if verbose {
		var e *verrors.Error
		if verrors.As(err, &e) {
			fmt.Fprintln(os.Stderr, dimStyle.Render(e.String()))
		}
	}
}
