package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/worker"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// pollInterval between lease attempts; the config value when zero.
	pollInterval time.Duration
	// workerName reported in leases; hostname and PID when empty.
	workerName string
	// once leases at most one task and exits.
	once bool

	// rootCmd represents the base command for running the build worker.
	rootCmd = &cobra.Command{
		Use:   "umpire-worker [server-address]",
		Short: "Lease and execute bundle build tasks.",
		Long: `Background service that polls the server for queued build tasks.

For every leased task the worker downloads the bundle payloads, packs them
into an archive, uploads the archive back as a resource and imports the
resulting bundle as a staged configuration version. Failures are reported
so the server can requeue the task for another attempt.
Server address can be provided as argument or loaded from configuration file.

With --once the worker leases at most one task and exits, which suits
cron-style scheduling.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &worker.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				PollInterval:  pollInterval,
				Name:          workerName,
				Once:          once,
			}

			return worker.Run(ctx, options)
		},
	}
)

// Execute runs the umpire-worker CLI and exits with non-zero status on error.
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
	rootCmd.Flags().DurationVarP(&pollInterval, "poll-interval", "p", 0, "interval between lease attempts")
	rootCmd.Flags().StringVarP(&workerName, "name", "n", "", "worker name reported in leases")
	rootCmd.Flags().BoolVar(&once, "once", false, "lease at most one task and exit")
}
