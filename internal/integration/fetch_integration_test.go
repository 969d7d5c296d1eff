package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopfloor/umpire/internal/service/common"
	"github.com/shopfloor/umpire/internal/service/fetch"
	"github.com/shopfloor/umpire/internal/service/packager"
)

// writeBundleDir creates a bundle directory with a manifest and payloads.
func writeBundleDir(t *testing.T, payloads map[string][]byte) string {
	t.Helper()

	dir := t.TempDir()
	manifest := "id: line-a\nnote: integration bundle\npayloads:\n"

	for name, data := range payloads {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))

		manifest += "  " + name[:len(name)-len(filepath.Ext(name))] + ": " + name + "\n"
	}

	require.NoError(
		t,
		os.WriteFile(filepath.Join(dir, packager.ManifestFilename), []byte(manifest), 0o600),
	)

	return dir
}

// TestPackagerFetch_Roundtrip publishes a bundle directory and fetches its
// payloads back through a real server.
func TestPackagerFetch_Roundtrip(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	dataRoot := filepath.Join(t.TempDir(), "data")

	cfgPath, stop := startGRPC(t, addr, dataRoot)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	firmware := []byte("firmware image contents")
	bundleDir := writeBundleDir(t, map[string][]byte{"firmware.bin": firmware})

	// Publish and deploy in one step.
	err := packager.Run(ctx, &packager.Options{
		ConfigPath:    cfgPath,
		ServerAddress: addr,
		BundleDir:     bundleDir,
		Deploy:        true,
	})
	require.NoError(t, err)

	c, err := common.Dial(ctx, addr, common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	cfg, version, err := c.GetConfig(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.Equal(t, "line-a", cfg.DefaultBundle)

	// Fetch the deployed bundle into an empty directory.
	fetchDir := filepath.Join(t.TempDir(), "dut")

	err = fetch.Run(ctx, &fetch.Options{
		ConfigPath:    cfgPath,
		ServerAddress: addr,
		FetchDir:      fetchDir,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(fetchDir, "firmware.bin"))
	require.NoError(t, err)
	require.Equal(t, firmware, got)

	// A second run finds everything up to date and changes nothing.
	before, err := os.Stat(filepath.Join(fetchDir, "firmware.bin"))
	require.NoError(t, err)

	err = fetch.Run(ctx, &fetch.Options{
		ConfigPath:    cfgPath,
		ServerAddress: addr,
		FetchDir:      fetchDir,
	})
	require.NoError(t, err)

	after, err := os.Stat(filepath.Join(fetchDir, "firmware.bin"))
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())

	// The fetch marker does not outlive the run.
	_, err = os.Stat(filepath.Join(fetchDir, fetch.MarkerFilename))
	require.True(t, os.IsNotExist(err))
}
