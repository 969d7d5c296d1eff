package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/packager"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// serverAddress overrides the server address from the settings file.
	serverAddress string
	// deploy promotes the imported bundle immediately.
	deploy bool

	// rootCmd represents the base command for publishing a bundle.
	rootCmd = &cobra.Command{
		Use:   "umpire-packager [bundle-dir]",
		Short: "Upload a bundle directory and stage it on the server.",
		Long: `Reads a bundle manifest from the given directory, uploads every payload
file to the server and imports the bundle as a staged configuration version.

The directory must contain a bundle.yaml manifest naming the bundle and
mapping payload types to local files. The staged version is left for review
unless --deploy is given, in which case it is promoted immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				BundleDir:     args[0],
				Deploy:        deploy,
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the umpire-packager CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&serverAddress, "server", "s", "", "gRPC server address override")
	rootCmd.Flags().BoolVar(&deploy, "deploy", false, "deploy the imported version instead of leaving it staged")
}
