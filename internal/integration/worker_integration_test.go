package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopfloor/umpire/internal/archive"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/service/common"
	"github.com/shopfloor/umpire/internal/service/worker"
)

// TestWorker_BuildsSubmittedBundle submits a build, runs the worker in
// one-shot mode and verifies the bundle ends up staged on the server.
func TestWorker_BuildsSubmittedBundle(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	dataRoot := filepath.Join(t.TempDir(), "data")

	cfgPath, stop := startGRPC(t, addr, dataRoot)
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	info, err := c.AddResource(ctx, "fw.bin", []byte("firmware image"))
	require.NoError(t, err)

	task, err := c.SubmitBuild(ctx, &domain.BuildRequest{
		BundleID:  "line-a",
		Note:      "worker test",
		Payloads:  map[string]string{"firmware": info.ID},
		Requester: testActor(),
	})
	require.NoError(t, err)

	// One-shot worker run leases the task, packs the payloads and imports
	// the bundle as a staged config version.
	err = worker.Run(ctx, &worker.Options{
		ConfigPath:    cfgPath,
		ServerAddress: addr,
		PollInterval:  50 * time.Millisecond,
		Name:          "test-builder",
		Once:          true,
	})
	require.NoError(t, err)

	done, err := c.GetBuild(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskDone, done.State)
	require.NotNil(t, done.Result)
	require.Empty(t, done.Result.Error)
	require.Equal(t, 1, done.Result.ConfigVersion)

	// The packed archive was uploaded as a resource.
	archive, err := c.StatResource(ctx, done.Result.ArchiveResource)
	require.NoError(t, err)
	require.Equal(t, "line-a.tar.gz", archive.Name)

	// The built bundle is staged, waiting for deployment.
	cfg, version, err := c.GetConfig(ctx, "staging")
	require.NoError(t, err)
	require.Equal(t, 1, version)

	b, err := cfg.FindBundle("line-a")
	require.NoError(t, err)
	require.Equal(t, info.ID, b.Payloads["firmware"].Resource)
}

// TestWorker_ArchiveKeepsSameNamedPayloads builds a bundle whose payload
// types share one upload file name and verifies both survive in the
// packed archive.
func TestWorker_ArchiveKeepsSameNamedPayloads(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	dataRoot := filepath.Join(t.TempDir(), "data")

	cfgPath, stop := startGRPC(t, addr, dataRoot)
	defer stop()

	ctx := context.Background()

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	firmware, err := c.AddResource(ctx, "image.bin", []byte("firmware contents"))
	require.NoError(t, err)

	toolkit, err := c.AddResource(ctx, "image.bin", []byte("toolkit contents"))
	require.NoError(t, err)

	task, err := c.SubmitBuild(ctx, &domain.BuildRequest{
		BundleID: "line-b",
		Note:     "name collision",
		Payloads: map[string]string{
			"firmware": firmware.ID,
			"toolkit":  toolkit.ID,
		},
		Requester: testActor(),
	})
	require.NoError(t, err)

	err = worker.Run(ctx, &worker.Options{
		ConfigPath:    cfgPath,
		ServerAddress: addr,
		PollInterval:  50 * time.Millisecond,
		Name:          "test-builder",
		Once:          true,
	})
	require.NoError(t, err)

	done, err := c.GetBuild(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskDone, done.State)
	require.NotNil(t, done.Result)
	require.Empty(t, done.Result.Error)

	packed, err := c.GetResource(ctx, done.Result.ArchiveResource)
	require.NoError(t, err)

	entries, err := archive.Unpack(bytes.NewReader(packed))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("firmware contents"), entries["firmware/image.bin"])
	require.Equal(t, []byte("toolkit contents"), entries["toolkit/image.bin"])
}
