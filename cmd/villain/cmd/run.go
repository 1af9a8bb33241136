package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run <request> [args...]",
	Short: "Run a request from the request table",
	Long: `Runs one request and prints its output.

The remaining arguments are available to the request as arg:0, arg:1, ...
and to cli.ParseOptions. Environment variables are available as env:NAME.

Examples:
  villain run @install
  villain run showEntry 5f1d7c0a9b3e4a0012345678`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SetInterspersed(false)
}

func runRequest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	request, rest := args[0], args[1:]
	a, err := openApp(ctx, rest)
	if err != nil {
		printError("startup failed", err)
		return err
	}
	defer a.Close()

	c, err := a.Executor.Run(ctx, request, chain.MultiInput{chain.ArgsInput(rest), chain.EnvInput{}})
	if err != nil {
		printError(fmt.Sprintf("request %q failed", request), err)
		return err
	}

	key := a.Executor.Table().OutputKey(request, server.OutputKey)
	if out, ok := c.Lookup(key); ok {
		printValue(out)
		return nil
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("Request %q completed", request)))
	for _, key := range c.Keys() {
		fmt.Printf("  %s %s\n", key, dimStyle.Render(fmt.Sprintf("%T", c.Get(key))))
	}
	return nil
}

func printValue(v any) {
	if s, ok := v.(string); ok {
		fmt.Println(s)
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(data))
}
