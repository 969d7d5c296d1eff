package resources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPutGetRoundtrip stores a blob and reads it back by its content id.
func TestPutGetRoundtrip(t *testing.T) {
	t.Parallel()

	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("toolkit payload")

	info, existed, err := repo.Put(ctx, "toolkit.tar.gz", payload)
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, "toolkit.tar.gz", info.Name)
	require.EqualValues(t, len(payload), info.Size)

	wantID, err := ID(payload)
	require.NoError(t, err)
	require.Equal(t, wantID, info.ID)

	data, err := repo.Get(ctx, info.ID)
	require.NoError(t, err)
	require.Equal(t, payload, data)

	stat, err := repo.Stat(ctx, info.ID)
	require.NoError(t, err)
	require.Equal(t, info.ID, stat.ID)
	require.False(t, stat.Created.IsZero())
}

// TestPutDeduplicates re-adding identical content is a no-op that keeps the
// original name and refreshes the touch timestamp.
func TestPutDeduplicates(t *testing.T) {
	t.Parallel()

	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("firmware image")

	first, existed, err := repo.Put(ctx, "firmware.bin", payload)
	require.NoError(t, err)
	require.False(t, existed)

	second, existed, err := repo.Put(ctx, "renamed.bin", payload)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "firmware.bin", second.Name)
	require.False(t, second.Touched.Before(first.Touched))

	infos, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

// TestGetMissingAndInvalid covers ErrNotFound and malformed ids.
func TestGetMissingAndInvalid(t *testing.T) {
	t.Parallel()

	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	missing, err := ID([]byte("never stored"))
	require.NoError(t, err)

	_, err = repo.Get(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Stat(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := repo.Has(ctx, missing)
	require.NoError(t, err)
	require.False(t, ok)

	// Malformed ids are rejected before touching the filesystem.
	_, err = repo.Get(ctx, "../../etc/passwd")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

// TestGC removes unreferenced blobs only.
func TestGC(t *testing.T) {
	t.Parallel()

	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	kept, _, err := repo.Put(ctx, "kept.bin", []byte("kept"))
	require.NoError(t, err)

	doomed, _, err := repo.Put(ctx, "doomed.bin", []byte("doomed"))
	require.NoError(t, err)

	removed, freed, err := repo.GC(ctx, map[string]struct{}{kept.ID: {}})
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.EqualValues(t, len("doomed"), freed)

	ok, err := repo.Has(ctx, kept.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Has(ctx, doomed.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
