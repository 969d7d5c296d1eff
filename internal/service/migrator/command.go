package migrator

import (
	"context"
	"fmt"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/migrate"
)

// Options controls which data root is migrated and how.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// DataRoot overrides the data root from the settings file.
	DataRoot string
	// Check reports the environment version without applying anything.
	Check bool
}

// Run migrates the configured data root to the current environment version.
// In check mode it only verifies the version and returns an error when the
// environment is stale or ahead of this binary.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "umpire-migrate")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	dataRoot := settings.DataRoot
	if opts.DataRoot != "" {
		dataRoot = opts.DataRoot
	}

	runner, err := migrate.NewRunner(dataRoot, migrate.Default())
	if err != nil {
		return fmt.Errorf("prepare migration runner: %w", err)
	}

	if opts.Check {
		current, err := runner.Current()
		if err != nil {
			return fmt.Errorf("read environment version: %w", err)
		}

		logger.InfoKV(ctx, "Environment version",
			"data_root", dataRoot,
			"current", current,
			"target", runner.Target())

		return runner.RequireCurrent()
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("migrate environment: %w", err)
	}

	logger.InfoKV(ctx, "Environment is up to date",
		"data_root", dataRoot,
		"version", runner.Target())

	return nil
}
