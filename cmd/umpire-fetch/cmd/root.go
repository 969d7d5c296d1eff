package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/fetch"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// fetchDir overrides the fetch directory from the settings file.
	fetchDir string
	// bundleID selects a bundle; the active default bundle when empty.
	bundleID string

	// rootCmd represents the base command for syncing bundle payloads.
	rootCmd = &cobra.Command{
		Use:   "umpire-fetch [server-address]",
		Short: "Download the active bundle payloads to this machine.",
		Long: `Fetches the payload files of a bundle from the active configuration
version and writes them into the local fetch directory.

Files already matching the expected content are skipped, so repeated runs
only transfer what changed. Each payload is replaced atomically and verified
against its content checksum before use. A marker file prevents overlapping
runs on the same directory.
Server address can be provided as argument or loaded from configuration file.`,
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

			options := &fetch.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				FetchDir:      fetchDir,
				BundleID:      bundleID,
			}

			return fetch.Run(ctx, options)
		},
	}
)

// Execute runs the umpire-fetch CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&fetchDir, "fetch-dir", "d", "", "directory to place bundle payloads in")
	rootCmd.Flags().StringVarP(&bundleID, "bundle", "b", "", "bundle to fetch instead of the default bundle")
}
