package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// newTestService builds a service over a throwaway data root.
func newTestService(t *testing.T) *service {
	t.Helper()

	svc, err := buildService(t.TempDir(), 10*time.Minute)
	require.NoError(t, err)

	return svc
}

// uploadPayload stores a blob and returns a bundle referencing it.
func uploadPayload(t *testing.T, svc *service, bundleID string, data []byte) *domain.Bundle {
	t.Helper()

	info, err := svc.AddResource(context.Background(), "toolkit.tar.gz", data)
	require.NoError(t, err)

	return &domain.Bundle{
		ID: bundleID,
		Payloads: map[string]*domain.Payload{
			domain.PayloadToolkit: {
				Resource: info.ID,
				Name:     info.Name,
				Size:     info.Size,
			},
		},
	}
}

// TestImportDeployFlow walks a bundle from import to deployment.
func TestImportDeployFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)
	actor := &domain.Actor{Hostname: "host", Username: "tester"}

	b := uploadPayload(t, svc, "mlb", []byte("toolkit payload"))

	staged, err := svc.ImportBundle(ctx, b, actor)
	require.NoError(t, err)
	require.Equal(t, 1, staged)

	// A second import must not clobber the pending deployment.
	_, err = svc.ImportBundle(ctx, b, actor)
	require.ErrorIs(t, err, configstore.ErrAlreadyStaged)

	info, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, info.ActiveVersion)
	require.Equal(t, 1, info.StagingVersion)
	require.Equal(t, "mlb", info.DefaultBundle)

	deployed, err := svc.Deploy(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, 1, deployed)

	info, err = svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, info.ActiveVersion)
	require.Equal(t, 0, info.StagingVersion)

	// Now the next import stacks a second version on the active config.
	second := uploadPayload(t, svc, "mlb-rev2", []byte("newer toolkit"))

	staged, err = svc.ImportBundle(ctx, second, actor)
	require.NoError(t, err)
	require.Equal(t, 2, staged)

	cfg, version, err := svc.GetConfig(ctx, "staging")
	require.NoError(t, err)
	require.Equal(t, 2, version)
	require.Len(t, cfg.Bundles, 2)
	// The first imported bundle stays the default.
	require.Equal(t, "mlb", cfg.DefaultBundle)
}

// TestImportRejectsMissingPayload checks resource verification on import.
func TestImportRejectsMissingPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	b := &domain.Bundle{
		ID: "mlb",
		Payloads: map[string]*domain.Payload{
			domain.PayloadToolkit: {
				Resource: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
				Name:     "toolkit.tar.gz",
			},
		},
	}

	_, err := svc.ImportBundle(ctx, b, nil)
	require.ErrorIs(t, err, resources.ErrNotFound)
}

// TestGetConfigSelectors checks active/staging/version resolution.
func TestGetConfigSelectors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)
	actor := &domain.Actor{Hostname: "host", Username: "tester"}

	b := uploadPayload(t, svc, "mlb", []byte("toolkit payload"))

	_, err := svc.ImportBundle(ctx, b, actor)
	require.NoError(t, err)

	_, _, err = svc.GetConfig(ctx, "active")
	require.ErrorIs(t, err, configstore.ErrNotFound)

	_, version, err := svc.GetConfig(ctx, "staging")
	require.NoError(t, err)
	require.Equal(t, 1, version)

	_, version, err = svc.GetConfig(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 1, version)

	_, _, err = svc.GetConfig(ctx, "nonsense")
	require.ErrorIs(t, err, configstore.ErrNotFound)

	_, err = svc.Deploy(ctx, actor)
	require.NoError(t, err)

	_, version, err = svc.GetConfig(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, version)
}

// TestBuildQueueFlow checks submit, lease and completion through the service.
func TestBuildQueueFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)

	// Payloads must exist before a build may be queued.
	_, err := svc.SubmitBuild(ctx, &domain.BuildRequest{
		BundleID: "mlb",
		Payloads: map[string]string{
			domain.PayloadToolkit: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		},
	})
	require.ErrorIs(t, err, resources.ErrNotFound)

	info, err := svc.AddResource(ctx, "toolkit.tar.gz", []byte("toolkit payload"))
	require.NoError(t, err)

	task, err := svc.SubmitBuild(ctx, &domain.BuildRequest{
		BundleID: "mlb",
		Payloads: map[string]string{domain.PayloadToolkit: info.ID},
	})
	require.NoError(t, err)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.PendingBuilds)

	leased, err := svc.LeaseBuild(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, task.ID, leased.ID)

	_, err = svc.LeaseBuild(ctx, "worker-2")
	require.ErrorIs(t, err, queue.ErrEmpty)

	err = svc.CompleteBuild(ctx, task.ID, "worker-1", &domain.BuildResult{ConfigVersion: 1})
	require.NoError(t, err)

	done, err := svc.GetBuild(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskDone, done.State)
}

// TestCollectGarbage checks that only unreferenced blobs are removed.
func TestCollectGarbage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t)
	actor := &domain.Actor{Hostname: "host", Username: "tester"}

	b := uploadPayload(t, svc, "mlb", []byte("referenced payload"))

	_, err := svc.ImportBundle(ctx, b, actor)
	require.NoError(t, err)

	orphan, err := svc.AddResource(ctx, "orphan.bin", []byte("orphan payload"))
	require.NoError(t, err)

	removed, freed, err := svc.CollectGarbage(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, int64(len("orphan payload")), freed)

	_, err = svc.StatResource(ctx, orphan.ID)
	require.ErrorIs(t, err, resources.ErrNotFound)

	_, err = svc.GetResource(ctx, b.Payloads[domain.PayloadToolkit].Resource)
	require.NoError(t, err)
}

// TestResolveListenAddress mirrors config/override combinations.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := resolveListenAddress("umpire.factory.local:8080", "")
	require.NoError(t, err)
	require.Equal(t, ":8080", addr)

	addr, err = resolveListenAddress("umpire.factory.local:8080", "127.0.0.1:9090")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", addr)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoServerAddress)

	_, err = resolveListenAddress("no-port", "")
	require.Error(t, err)
}
