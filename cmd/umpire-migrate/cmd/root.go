package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/migrator"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// dataRoot overrides the server data directory.
	dataRoot string
	// check reports the environment version without migrating.
	check bool

	// rootCmd represents the base command for migrating a data root.
	rootCmd = &cobra.Command{
		Use:   "umpire-migrate",
		Short: "Migrate a server data root to the current environment version.",
		Long: `Applies pending environment migrations to the server data root.

Migrations run in order and record progress in a marker file, so an
interrupted run can be resumed by running the tool again. The config store
is backed up before any migration touches an existing root.

With --check the tool only reports the environment version and exits
non-zero when a migration is needed.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &migrator.Options{
				ConfigPath: configPath,
				DataRoot:   dataRoot,
				Check:      check,
			}

			return migrator.Run(ctx, options)
		},
	}
)

// Execute runs the umpire-migrate CLI and exits with non-zero status on error.
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
	rootCmd.Flags().BoolVar(&check, "check", false, "report the environment version without migrating")
}
