package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/server"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// dataRoot overrides the server data directory.
	dataRoot string

	// rootCmd represents the base command for running the gRPC server.
	rootCmd = &cobra.Command{
		Use:   "umpire-server [listen-address]",
		Short: "Run the umpire bundle server.",
		Long: `Starts the gRPC server that stores resources, versioned configurations
and build tasks for factory software bundles.

The server listens on the specified address or uses settings from configuration file.
Only the port from ServerAddress config is used for listening (e.g., :8080).
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:8080).
All state lives under the data root and must be migrated with umpire-migrate
before the server agrees to start.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				DataRoot:      dataRoot,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the umpire-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&dataRoot, "data-root", "d", "", "path to the server data directory")
}
