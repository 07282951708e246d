package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minhd-vu/webserver/internal/config"
)

// newServeCmd creates the 'serve' subcommand, which runs until SIGINT/SIGTERM
// or until listener.max_connections connections have been accepted.
func newServeCmd(cfgFile *string) *cobra.Command {
	var (
		port    int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the listener, thread pool, and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("workers") {
				cfg.Pool.Size = workers
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			if err := a.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run application: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	cmd.Flags().IntVar(&workers, "workers", 0, "override pool.size")
	return cmd
}
