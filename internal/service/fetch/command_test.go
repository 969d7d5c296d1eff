package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopfloor/umpire/internal/repository/resources"
)

// TestLocalMatches checks the content-id comparison against local files.
func TestLocalMatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "toolkit.tar.gz")
	data := []byte("payload bytes")

	id, err := resources.ID(data)
	require.NoError(t, err)

	// Missing file never matches.
	require.False(t, localMatches(path, id))

	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.True(t, localMatches(path, id))

	require.NoError(t, os.WriteFile(path, []byte("different bytes"), 0o644))
	require.False(t, localMatches(path, id))
}

// TestIsFetchRunningNow checks marker detection and stale cleanup.
func TestIsFetchRunningNow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	markerPath := filepath.Join(dir, MarkerFilename)

	require.False(t, isFetchRunningNow(ctx, dir))

	require.NoError(t, os.WriteFile(markerPath, []byte{}, 0o644))
	require.True(t, isFetchRunningNow(ctx, dir))

	// A marker older than its lifetime is removed and no longer blocks.
	stale := time.Now().Add(-markerLifetime - time.Minute)
	require.NoError(t, os.Chtimes(markerPath, stale, stale))

	require.False(t, isFetchRunningNow(ctx, dir))
	require.NoFileExists(t, markerPath)
}
