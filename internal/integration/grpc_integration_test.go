package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/migrate"
	"github.com/shopfloor/umpire/internal/service/common"
	"github.com/shopfloor/umpire/internal/service/server"
)

// reservePort returns an address on a free TCP port and closes it.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeSettings stores a test settings file and returns its path.
func writeSettings(t *testing.T, addr, dataRoot string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")

	require.NoError(
		t,
		config.Save(cfgPath, &config.Config{
			ServerAddress: addr,
			DataRoot:      dataRoot,
			Timeout:       5 * time.Second,
			LeaseTTL:      time.Minute,
		}),
	)

	return cfgPath
}

// startGRPC migrates a fresh data root and starts a real gRPC server on it.
// Returns the settings path and a stop function for graceful shutdown.
func startGRPC(t *testing.T, addr, dataRoot string) (cfgPath string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cfgPath = writeSettings(t, addr, dataRoot)

	// The server refuses to start on an unmigrated root.
	runner, err := migrate.NewRunner(dataRoot, migrate.Default())
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx))

	// Start server in background goroutine.
	go func() {
		options := &server.Options{
			ConfigPath:    cfgPath,
			ListenAddress: addr,
			DataRoot:      dataRoot,
		}

		_ = server.Run(ctx, options) //nolint:errcheck // Test server is torn down by context cancel.
	}()

	// Wait briefly for server to start listening.
	time.Sleep(150 * time.Millisecond)

	return cfgPath, func() {
		cancel()
		time.Sleep(100 * time.Millisecond)
	}
}

// testActor is the audit identity used by the integration tests.
func testActor() *domain.Actor {
	return &domain.Actor{
		Hostname: "test-hostname",
		Username: "test-user",
	}
}

// TestGRPC_BundleLifecycle exercises upload, import, deploy and rollback
// against a real server with on-disk state.
func TestGRPC_BundleLifecycle(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	dataRoot := filepath.Join(t.TempDir(), "data")

	_, stop := startGRPC(t, addr, dataRoot)
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	// Fresh server reports no versions at all.
	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.ActiveVersion)
	require.Zero(t, status.StagingVersion)

	// Upload a payload and import a bundle referencing it.
	info, err := c.AddResource(ctx, "fw.bin", []byte("firmware image"))
	require.NoError(t, err)

	staged, err := c.ImportBundle(ctx, &domain.Bundle{
		ID:   "line-a",
		Note: "first import",
		Payloads: map[string]*domain.Payload{
			"firmware": {Resource: info.ID, Name: info.Name, Size: info.Size},
		},
	}, testActor())
	require.NoError(t, err)
	require.Equal(t, 1, staged)

	// The imported version is staged, not active.
	status, err = c.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.ActiveVersion)
	require.Equal(t, 1, status.StagingVersion)

	deployed, err := c.Deploy(ctx, testActor())
	require.NoError(t, err)
	require.Equal(t, 1, deployed)

	// Active config now serves the bundle as default.
	cfg, version, err := c.GetConfig(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.Equal(t, "line-a", cfg.DefaultBundle)

	b, err := cfg.FindBundle("line-a")
	require.NoError(t, err)
	require.Equal(t, info.ID, b.Payloads["firmware"].Resource)

	// A second import stacks a new version on top of the active one.
	info2, err := c.AddResource(ctx, "fw-v2.bin", []byte("firmware image v2"))
	require.NoError(t, err)

	staged, err = c.ImportBundle(ctx, &domain.Bundle{
		ID: "line-b",
		Payloads: map[string]*domain.Payload{
			"firmware": {Resource: info2.ID, Name: info2.Name, Size: info2.Size},
		},
	}, testActor())
	require.NoError(t, err)
	require.Equal(t, 2, staged)

	deployed, err = c.Deploy(ctx, testActor())
	require.NoError(t, err)
	require.Equal(t, 2, deployed)

	// Rollback restores version 1 as active without destroying version 2.
	restored, err := c.Rollback(ctx, 1, testActor())
	require.NoError(t, err)
	require.Equal(t, 1, restored)

	_, version, err = c.GetConfig(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, 1, version)

	// History records every promotion, newest operations last.
	history, err := c.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "test-hostname", history[0].Actor.Hostname)
}

// TestGRPC_BuildQueue walks a build task through the lease protocol over RPC.
func TestGRPC_BuildQueue(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	dataRoot := filepath.Join(t.TempDir(), "data")

	_, stop := startGRPC(t, addr, dataRoot)
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	info, err := c.AddResource(ctx, "app.tar", []byte("application payload"))
	require.NoError(t, err)

	task, err := c.SubmitBuild(ctx, &domain.BuildRequest{
		BundleID:  "line-a",
		Note:      "nightly",
		Payloads:  map[string]string{"application": info.ID},
		Requester: testActor(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, task.State)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.PendingBuilds)

	leased, err := c.LeaseBuild(ctx, "builder-1")
	require.NoError(t, err)
	require.Equal(t, task.ID, leased.ID)
	require.Equal(t, "builder-1", leased.LeaseOwner)

	require.NoError(t, c.CompleteBuild(ctx, leased.ID, "builder-1", &domain.BuildResult{
		ArchiveResource: info.ID,
		ConfigVersion:   1,
	}))

	done, err := c.GetBuild(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskDone, done.State)
	require.NotNil(t, done.Result)
	require.Equal(t, 1, done.Result.ConfigVersion)
}
