// Package cmd defines the CLI for the webserver executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/app"
	"github.com/minhd-vu/webserver/internal/config"
)

// runner is what serve drives; *app.App satisfies it.
type runner interface {
	Run(ctx context.Context) error
}

// buildApp is the application factory. It's a variable so tests can swap in
// a fake runner.
var buildApp = func(ctx context.Context, cfg config.Config) (runner, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "webserver",
		Short: "A single-port web server backed by a fixed-size thread pool.",
		Long: `webserver accepts TCP connections on one port and hands each one to a
fixed pool of workers. GET / returns a greeting page, GET /sleep holds its
worker for a configurable delay first, and everything else gets a 404 page.
Shutdown stops accepting, drains queued connections, then joins every worker.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.AddCommand(newServeCmd(&cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := zap.NewProduction()
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
