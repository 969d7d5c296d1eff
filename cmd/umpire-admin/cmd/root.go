package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/service/admin"
	"github.com/shopfloor/umpire/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// serverAddress overrides the server address from the settings file.
	serverAddress string

	// rootCmd represents the base command for server administration.
	rootCmd = &cobra.Command{
		Use:   "umpire-admin",
		Short: "Inspect and manage the umpire server.",
		Long: `Operator tooling for the umpire bundle server.

Shows server status, promotes and rolls back configuration versions,
queues bundle builds and cleans up unreferenced resources. Every command
talks to the server over gRPC using the configured address.`,
	}
)

// adminOptions builds the shared connection options from the global flags.
func adminOptions() *admin.Options {
	return &admin.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
	}
}

// commandContext installs signal handling for a subcommand run.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// parseVersionArg converts a positional version argument.
func parseVersionArg(arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q", arg)
	}

	return v, nil
}

// parsePayloadFlags converts repeated type=resource-id pairs into a map.
func parsePayloadFlags(pairs []string) (map[string]string, error) {
	payloads := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		payloadType, resource, ok := strings.Cut(pair, "=")
		if !ok || payloadType == "" || resource == "" {
			return nil, fmt.Errorf("invalid payload %q, want type=resource-id", pair)
		}

		payloads[payloadType] = resource
	}

	return payloads, nil
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status and known bundles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.Status(ctx, adminOptions())
		},
	}
}

func newStageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stage [version]",
		Short: "Stage a stored configuration version, the latest when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := commandContext()
			defer stop()

			var v int
			if len(args) > 0 {
				parsed, err := parseVersionArg(args[0])
				if err != nil {
					return err
				}

				v = parsed
			}

			return admin.Stage(ctx, adminOptions(), v)
		},
	}
}

func newUnstageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unstage",
		Short: "Discard the currently staged version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.Unstage(ctx, adminOptions())
		},
	}
}

func newDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Promote the staged version to active",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.Deploy(ctx, adminOptions())
		},
	}
}

func newRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <version>",
		Short: "Make an older stored version active again",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := commandContext()
			defer stop()

			v, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}

			return admin.Rollback(ctx, adminOptions(), v)
		},
	}
}

func newShowConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-config [active|staging|<version>]",
		Short: "Print a stored configuration document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := commandContext()
			defer stop()

			var selector string
			if len(args) > 0 {
				selector = args[0]
			}

			return admin.ShowConfig(ctx, adminOptions(), selector)
		},
	}
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List deployment history",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.History(ctx, adminOptions())
		},
	}
}

func newSubmitBuildCommand() *cobra.Command {
	var (
		note     string
		payloads []string
	)

	command := &cobra.Command{
		Use:   "submit-build <bundle-id>",
		Short: "Queue a bundle build from uploaded resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := commandContext()
			defer stop()

			parsed, err := parsePayloadFlags(payloads)
			if err != nil {
				return err
			}

			return admin.SubmitBuild(ctx, adminOptions(), args[0], note, parsed)
		},
	}

	command.Flags().StringVar(&note, "note", "", "note recorded with the build")
	command.Flags().StringArrayVar(&payloads, "payload", nil, "payload as type=resource-id, repeatable")

	return command
}

func newShowBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-build <task-id>",
		Short: "Print the state of a build task",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.ShowBuild(ctx, adminOptions(), args[0])
		},
	}
}

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove resources no stored version references",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			return admin.CollectGarbage(ctx, adminOptions())
		},
	}
}

// Execute runs the umpire-admin CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "", "gRPC server address override")

	rootCmd.AddCommand(
		newStatusCommand(),
		newStageCommand(),
		newUnstageCommand(),
		newDeployCommand(),
		newRollbackCommand(),
		newShowConfigCommand(),
		newHistoryCommand(),
		newSubmitBuildCommand(),
		newGCCommand(),
		newShowBuildCommand(),
	)
}
