package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPackUnpackRoundtrip verifies contents survive a pack and unpack cycle
// and that identical inputs produce identical archives.
func TestPackUnpackRoundtrip(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"toolkit.tar.gz": []byte("toolkit payload"),
		"firmware.bin":   {0x00, 0xff, 0x10},
		"MANIFEST.yaml":  []byte("id: 20260830-proto\n"),
	}

	first, err := PackBytes(files)
	require.NoError(t, err)

	second, err := PackBytes(files)
	require.NoError(t, err)
	require.Equal(t, first, second)

	unpacked, err := Unpack(bytes.NewReader(first))
	require.NoError(t, err)
	require.Equal(t, files, unpacked)
}

// TestUnpackRejectsEscapingEntries refuses absolute and parent-relative names.
func TestUnpackRejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	packed, err := PackBytes(map[string][]byte{
		"../escape": []byte("nope"),
	})
	require.NoError(t, err)

	_, err = Unpack(bytes.NewReader(packed))
	require.Error(t, err)
}

// TestPackDir archives regular files relative to the directory root.
func TestPackDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "umpire.0001.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".umpire-env.yaml"), []byte("version: 1\n"), 0o644))
	// Symlinks are skipped.
	require.NoError(t, os.Symlink(filepath.Join(dir, "conf", "umpire.0001.json"), filepath.Join(dir, "conf", "active")))

	out := filepath.Join(t.TempDir(), "backup.tar.gz")
	f, err := os.Create(out)
	require.NoError(t, err)
	require.NoError(t, PackDir(f, dir))
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(out)
	require.NoError(t, err)

	unpacked, err := Unpack(bytes.NewReader(contents))
	require.NoError(t, err)
	require.Len(t, unpacked, 2)
	require.Contains(t, unpacked, "conf/umpire.0001.json")
	require.Contains(t, unpacked, ".umpire-env.yaml")
}
