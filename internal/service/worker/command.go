package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/service/common"
)

// Options controls the worker polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// PollInterval defines the interval between lease attempts.
	PollInterval time.Duration
	// Name overrides the worker name reported in leases.
	Name string
	// Once leases at most one task and exits, for cron-style operation.
	Once bool
}

// Run polls the server for build tasks and executes them until the context
// is canceled. Every outcome is reported back so the task never stays
// leased longer than the server's lease TTL.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "umpire-worker")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = cfg.PollInterval
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", actor.Hostname, os.Getpid())
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Polling for build tasks",
		"server_address", serverAddress,
		"worker", name,
		"interval", opts.PollInterval.String())

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		worked, err := leaseOne(ctx, client, name, actor)
		if err != nil {
			logger.ErrorKV(ctx, "Build attempt failed", "error", err)
		}

		if opts.Once {
			return err
		}

		// Drain the queue before going back to sleep.
		if worked && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
		}
	}
}

// leaseOne takes at most one task from the server and runs it. The first
// return value reports whether a task was leased at all.
func leaseOne(ctx context.Context, client *api.Client, name string, actor *domain.Actor) (bool, error) {
	task, err := client.LeaseBuild(ctx, name)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("lease build: %w", err)
	}

	logger.InfoKV(ctx, "Leased build task",
		"task", task.ID,
		"bundle", task.Request.BundleID,
		"attempt", task.Attempts)

	result, buildErr := executeBuild(ctx, client, task, actor)
	if buildErr != nil {
		logger.ErrorKV(ctx, "Build failed", "task", task.ID, "error", buildErr)

		if failErr := client.FailBuild(ctx, task.ID, name, buildErr.Error()); failErr != nil {
			return true, fmt.Errorf("report failure: %w", failErr)
		}

		return true, buildErr
	}

	if err := client.CompleteBuild(ctx, task.ID, name, result); err != nil {
		return true, fmt.Errorf("report completion: %w", err)
	}

	logger.InfoKV(ctx, "Build task completed",
		"task", task.ID,
		"archive", result.ArchiveResource,
		"config_version", result.ConfigVersion)

	return true, nil
}
