package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"google.golang.org/grpc"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/migrate"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
	"github.com/shopfloor/umpire/internal/service/common"
)

// Options controls the umpire-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// DataRoot overrides the data root from the settings file.
	DataRoot string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the gRPC server and blocks until context is canceled or the
// server stops. The environment must be fully migrated; stale roots are
// refused with a pointer at umpire-migrate.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "umpire-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	dataRoot := settings.DataRoot
	if opts.DataRoot != "" {
		dataRoot = opts.DataRoot
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	runner, err := migrate.NewRunner(dataRoot, migrate.Default())
	if err != nil {
		return fmt.Errorf("initialise migrations: %w", err)
	}

	if err := runner.RequireCurrent(); err != nil {
		return fmt.Errorf("check environment (run umpire-migrate): %w", err)
	}

	svc, err := buildService(dataRoot, settings.LeaseTTL)
	if err != nil {
		return err
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(common.DefaultMaxMessageSize),
		grpc.MaxSendMsgSize(common.DefaultMaxMessageSize),
	)
	api.RegisterUmpireServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Umpire server listening",
		"listen_address", listenAddress,
		"data_root", dataRoot)

	// Requeue builds whose worker went silent; the same interval workers
	// use for polling is good enough.
	go sweepLoop(ctx, svc, settings.PollInterval)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// buildService opens the storage layers under the data root.
func buildService(dataRoot string, leaseTTL time.Duration) (*service, error) {
	repo, err := resources.NewRepository(filepath.Join(dataRoot, "resources"))
	if err != nil {
		return nil, fmt.Errorf("open resource repository: %w", err)
	}

	store, err := configstore.NewStore(filepath.Join(dataRoot, "conf"))
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}

	q, err := queue.NewQueue(filepath.Join(dataRoot, "tasks"))
	if err != nil {
		return nil, fmt.Errorf("open build queue: %w", err)
	}

	return newService(repo, store, q, leaseTTL), nil
}

// sweepLoop periodically requeues expired build leases.
func sweepLoop(ctx context.Context, svc *service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.queue.SweepExpired(ctx); err != nil {
				logger.Errorf(ctx, "Failed to sweep expired leases: %v", err)
			}
		}
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts the port
// from configAddr and binds on all interfaces.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
