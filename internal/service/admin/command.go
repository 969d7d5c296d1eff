package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/service/common"
)

// Options configures the connection shared by all admin commands.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// Output receives command results; os.Stdout when nil.
	Output io.Writer
}

// session bundles the connection state every command needs.
type session struct {
	client *api.Client
	actor  *domain.Actor
	out    io.Writer
}

// withSession dials the server, runs fn and tears the connection down.
func withSession(ctx context.Context, opts *Options, fn func(ctx context.Context, s *session) error) error {
	ctx = logger.WithName(ctx, "umpire-admin")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	return fn(ctx, &session{client: client, actor: actor, out: out})
}

// Status prints the deployment state of the server.
func Status(ctx context.Context, opts *Options) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		info, err := s.client.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "active version:  %s\n", formatVersion(info.ActiveVersion))
		fmt.Fprintf(s.out, "staging version: %s\n", formatVersion(info.StagingVersion))
		fmt.Fprintf(s.out, "pending builds:  %d\n", info.PendingBuilds)
		fmt.Fprintf(s.out, "bundles:\n")

		for _, b := range info.Bundles {
			marker := " "
			if b.ID == info.DefaultBundle {
				marker = "*"
			}

			fmt.Fprintf(s.out, "  %s %s (%d payloads)\n", marker, b.ID, len(b.Payloads))
		}

		return nil
	})
}

// Stage stages a stored config version; zero selects the latest.
func Stage(ctx context.Context, opts *Options, version int) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		staged, err := s.client.StageConfig(ctx, version)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "staged version %d\n", staged)

		return nil
	})
}

// Unstage drops the staged config.
func Unstage(ctx context.Context, opts *Options) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		if err := s.client.UnstageConfig(ctx); err != nil {
			return err
		}

		fmt.Fprintln(s.out, "staging cleared")

		return nil
	})
}

// Deploy promotes the staged config to active.
func Deploy(ctx context.Context, opts *Options) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		version, err := s.client.Deploy(ctx, s.actor)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "deployed version %d\n", version)

		return nil
	})
}

// Rollback re-deploys an older config version.
func Rollback(ctx context.Context, opts *Options, version int) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		deployed, err := s.client.Rollback(ctx, version, s.actor)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "rolled back to version %d\n", deployed)

		return nil
	})
}

// ShowConfig prints a stored config document as JSON.
func ShowConfig(ctx context.Context, opts *Options, selector string) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		cfg, version, err := s.client.GetConfig(ctx, selector)
		if err != nil {
			return err
		}

		document := map[string]any{
			"version":        version,
			"schema":         cfg.Schema,
			"default_bundle": cfg.DefaultBundle,
			"bundles":        cfg.Bundles,
		}

		data, err := json.MarshalIndent(document, "", "  ")
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		fmt.Fprintln(s.out, string(data))

		return nil
	})
}

// History prints the deployment audit trail.
func History(ctx context.Context, opts *Options) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		records, err := s.client.History(ctx)
		if err != nil {
			return err
		}

		for _, record := range records {
			actor := "<unknown>"
			if record.Actor != nil {
				actor = record.Actor.String()
			}

			fmt.Fprintf(s.out, "%s  v%-4d %-10s %s\n",
				record.Timestamp.Format(time.RFC3339), record.Version, record.Note, actor)
		}

		return nil
	})
}

// SubmitBuild enqueues a bundle build from already uploaded resources.
func SubmitBuild(ctx context.Context, opts *Options, bundleID, note string, payloads map[string]string) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		task, err := s.client.SubmitBuild(ctx, &domain.BuildRequest{
			BundleID:  bundleID,
			Note:      note,
			Payloads:  payloads,
			Requester: s.actor,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "queued build task %s\n", task.ID)

		return nil
	})
}

// ShowBuild prints the state of one build task.
func ShowBuild(ctx context.Context, opts *Options, id string) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		task, err := s.client.GetBuild(ctx, id)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "task:     %s\n", task.ID)
		fmt.Fprintf(s.out, "state:    %s\n", task.State)
		fmt.Fprintf(s.out, "bundle:   %s\n", task.Request.BundleID)
		fmt.Fprintf(s.out, "attempts: %d\n", task.Attempts)

		if task.State == domain.TaskLeased {
			fmt.Fprintf(s.out, "worker:   %s (until %s)\n",
				task.LeaseOwner, task.LeaseDeadline.Format(time.RFC3339))
		}

		if task.Result != nil {
			if task.Result.Error != "" {
				fmt.Fprintf(s.out, "error:    %s\n", task.Result.Error)
			} else {
				fmt.Fprintf(s.out, "archive:  %s\n", task.Result.ArchiveResource)
				fmt.Fprintf(s.out, "version:  %d\n", task.Result.ConfigVersion)
			}
		}

		return nil
	})
}

// CollectGarbage drops resources no stored config references.
func CollectGarbage(ctx context.Context, opts *Options) error {
	return withSession(ctx, opts, func(ctx context.Context, s *session) error {
		removed, freed, err := s.client.CollectGarbage(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "removed %d resources, freed %s\n", removed, humanize.Bytes(uint64(freed)))

		return nil
	})
}

// formatVersion renders a config version for humans; zero means none.
func formatVersion(version int) string {
	if version == 0 {
		return "<none>"
	}

	return fmt.Sprintf("%d", version)
}
