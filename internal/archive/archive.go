package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DefaultEntryMode is the file mode recorded for packed entries.
const DefaultEntryMode = 0o644

// errAbsoluteEntry rejects archive entries that escape the extraction root.
var errAbsoluteEntry = errors.New("archive entry path must be relative")

// Pack writes a tar.gz archive containing the provided files, keyed by
// archive-relative name. Entries are sorted by name.
func Pack(w io.Writer, files map[string][]byte) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := writeEntry(tarWriter, name, files[name]); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}

	return nil
}

// PackBytes is Pack into a memory buffer.
func PackBytes(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Pack(&buf, files); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// PackDir archives the contents of dir, with entry names relative to it.
// Symlinks are skipped: the config store's active/staging links are
// reconstructed from the documents themselves, not restored from backups.
func PackDir(w io.Writer, dir string) error {
	files := make(map[string][]byte)

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		contents, err := os.ReadFile(path) //nolint:gosec // Path originates from the walked directory.
		if err != nil {
			return err
		}

		files[filepath.ToSlash(relative)] = contents

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}

	return Pack(w, files)
}

// Unpack reads a tar.gz archive into memory, keyed by entry name.
func Unpack(r io.Reader) (map[string][]byte, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}

	defer func() {
		_ = gzReader.Close()
	}()

	files := make(map[string][]byte)
	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.ToSlash(header.Name)
		if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
			return nil, fmt.Errorf("%q: %w", header.Name, errAbsoluteEntry)
		}

		contents, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", header.Name, err)
		}

		files[name] = contents
	}

	return files, nil
}

// writeEntry emits a single regular file entry with a zeroed timestamp.
func writeEntry(tw *tar.Writer, name string, contents []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(contents)),
		Mode:     DefaultEntryMode,
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header %q: %w", name, err)
	}

	if _, err := tw.Write(contents); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}

	return nil
}
