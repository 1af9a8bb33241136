package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/villain-cms/villain/internal/app"
	"github.com/villain-cms/villain/internal/server"
	"github.com/villain-cms/villain/pkg/core/config"
	vgrpc "github.com/villain-cms/villain/pkg/core/grpc"
)

var serveNoGRPC bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve requests over HTTP",
	Long: `Starts the HTTP front controller and the gRPC health service.

Endpoints:
  GET|POST /r/<request>   run a request; query, form, JSON body, cookies
                          and headers are available as parameter sources
  GET      /health        health report

With requests.watch enabled the request table is reloaded whenever the
file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoGRPC, "no-grpc", false, "Do not start the gRPC health service")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	if cfg.Telemetry.Traces {
		shutdown, err := app.SetupTracing(os.Stdout)
		if err != nil {
			printError("tracing", err)
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		printError("startup failed", err)
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(a.Executor, server.Options{
		Health:       a.Health,
		Tokens:       a.Tokens,
		Logger:       a.Logger.Named("http"),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.HTTPAddress())
	})

	if !serveNoGRPC {
		gs := vgrpc.NewServer(a.Health, vgrpc.Options{
			Logger:     a.Logger.Named("grpc"),
			Reflection: true,
			Keepalive:  30 * time.Second,
		})
		g.Go(func() error {
			return gs.ListenAndServe(gctx, cfg.GRPCAddress())
		})
	}

	if cfg.Requests.Watch {
		w, err := config.NewWatcher(a.TablePath(), func(path string) {
			if err := a.ReloadTable(); err != nil {
				a.Logger.Error("Request table reload rejected", "path", path, "error", err)
			}
		}, a.Logger.Named("watch"))
		if err != nil {
			printError("watch request table", err)
			return err
		}
		if err := w.Start(gctx); err != nil {
			printError("watch request table", err)
			return err
		}
		defer w.Stop()
	}

	a.Logger.Info("Villain serving",
		"http", cfg.HTTPAddress(),
		"grpc", cfg.GRPCAddress(),
		"datastore", cfg.Datastore.Driver)

	if err := g.Wait(); err != nil {
		printError("server stopped", err)
		return err
	}
	return nil
}
