package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
)

// testConfig builds a small valid document for store tests.
func testConfig(bundleID string) *domain.Config {
	cfg := domain.NewConfig()
	cfg.PutBundle(&domain.Bundle{
		ID:   bundleID,
		Note: "test bundle",
		Payloads: map[string]*domain.Payload{
			domain.PayloadToolkit: {
				Resource: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
				Name:     "toolkit.tar.gz",
				Size:     42,
			},
		},
	})

	return cfg
}

// TestSaveLoadRoundtrip persists a document and reads it back unchanged.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	cfg := testConfig("20260830-proto")

	version, err := store.Save(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	loaded, err := store.Load(ctx, version)
	require.NoError(t, err)
	require.Equal(t, cfg.Schema, loaded.Schema)
	require.Equal(t, cfg.DefaultBundle, loaded.DefaultBundle)
	require.Len(t, loaded.Bundles, 1)
	require.Equal(t, cfg.Bundles[0].Payloads, loaded.Bundles[0].Payloads)

	// Versions increase monotonically and are never reused.
	version, err = store.Save(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	versions, err := store.Versions(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, versions)

	_, err = store.Load(ctx, 99)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestStageDeployFlow exercises the staging to active promotion path.
func TestStageDeployFlow(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	actor := &domain.Actor{Hostname: "umpire-host", Username: "operator"}

	// Fresh environment: nothing active, nothing staged.
	_, _, err = store.Active(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Deploy(ctx, actor)
	require.ErrorIs(t, err, ErrNothingStaged)

	_, err = store.Save(ctx, testConfig("a"))
	require.NoError(t, err)

	secondVersion, err := store.Save(ctx, testConfig("b"))
	require.NoError(t, err)

	// Stage latest (version 0 means latest).
	staged, err := store.Stage(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, secondVersion, staged)

	// Double staging is refused.
	_, err = store.Stage(ctx, 1)
	require.ErrorIs(t, err, ErrAlreadyStaged)

	cfg, version, err := store.Staging(ctx)
	require.NoError(t, err)
	require.Equal(t, secondVersion, version)
	require.Equal(t, "b", cfg.DefaultBundle)

	deployed, err := store.Deploy(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, secondVersion, deployed)

	// Staging is gone, active points at the deployed version.
	_, _, err = store.Staging(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	_, version, err = store.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, secondVersion, version)

	records, err := store.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, secondVersion, records[0].Version)
	require.Equal(t, "deploy", records[0].Note)
	require.Equal(t, "operator", records[0].Actor.Username)
}

// TestUnstage removes the staging link and errors when nothing is staged.
func TestUnstage(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	require.ErrorIs(t, store.Unstage(ctx), ErrNothingStaged)

	_, err = store.Save(ctx, testConfig("a"))
	require.NoError(t, err)

	_, err = store.Stage(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, store.Unstage(ctx))

	_, _, err = store.Staging(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestRollback re-activates an older version and records it.
func TestRollback(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	actor := &domain.Actor{Hostname: "umpire-host", Username: "operator"}

	firstVersion, err := store.Save(ctx, testConfig("a"))
	require.NoError(t, err)

	_, err = store.Save(ctx, testConfig("b"))
	require.NoError(t, err)

	_, err = store.Stage(ctx, 0)
	require.NoError(t, err)

	_, err = store.Deploy(ctx, actor)
	require.NoError(t, err)

	_, err = store.Rollback(ctx, firstVersion, actor)
	require.NoError(t, err)

	cfg, version, err := store.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, firstVersion, version)
	require.Equal(t, "a", cfg.DefaultBundle)

	_, err = store.Rollback(ctx, 99, actor)
	require.ErrorIs(t, err, ErrNotFound)

	records, err := store.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "rollback", records[1].Note)
}

// TestActiveLinkIsSymlink pins down the promotion mechanism itself.
func TestActiveLinkIsSymlink(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	ctx := context.Background()
	actor := &domain.Actor{Hostname: "umpire-host", Username: "operator"}

	version, err := store.Save(ctx, testConfig("a"))
	require.NoError(t, err)

	_, err = store.Stage(ctx, version)
	require.NoError(t, err)

	_, err = store.Deploy(ctx, actor)
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(root, "active"))
	require.NoError(t, err)
	require.Equal(t, "umpire.0001.json", filepath.Base(target))
}
