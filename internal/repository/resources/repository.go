package resources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
)

const (
	// blobDirName holds the content-addressed blobs.
	blobDirName = "blobs"
	// metaDirName holds the per-blob metadata sidecars.
	metaDirName = "meta"
	// lockFileName is the repository-wide mutation lock.
	lockFileName = "lock"

	// dirMode is used for repository directories.
	dirMode os.FileMode = 0o755
	// blobMode keeps stored blobs read-only: content under a CID never changes.
	blobMode os.FileMode = 0o444
)

var (
	// ErrNotFound is returned when a resource id is not in the repository.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidID is returned when an id is not a well-formed CID.
	ErrInvalidID = errors.New("invalid resource id")
)

// Repository is a content-addressed blob store rooted at a directory.
type Repository struct {
	// root is the repository directory (blobs, meta, lock live under it).
	root string
}

// NewRepository opens (creating if needed) a repository at root.
func NewRepository(root string) (*Repository, error) {
	r := &Repository{root: filepath.Clean(root)}

	for _, dir := range []string{r.root, filepath.Join(r.root, blobDirName), filepath.Join(r.root, metaDirName)} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("create repository dir: %w", err)
		}
	}

	return r, nil
}

// ID computes the content-addressed identifier of data: a CIDv1 string using
// the raw multicodec and a sha2-256 multihash.
func ID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash resource: %w", err)
	}

	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Put stores data under its content id and returns the resource info.
// Re-adding existing content refreshes the Touched timestamp and reports
// existed=true; the blob itself is never rewritten.
func (r *Repository) Put(ctx context.Context, name string, data []byte) (info *domain.ResourceInfo, existed bool, err error) {
	id, err := ID(data)
	if err != nil {
		return nil, false, err
	}

	unlock, err := lockFS(ctx, filepath.Join(r.root, lockFileName))
	if err != nil {
		return nil, false, fmt.Errorf("lock repository: %w", err)
	}

	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			logger.ErrorKV(ctx, "Failed to release repository lock", "error", unlockErr)
		}
	}()

	blobPath := r.blobPath(id)

	if _, statErr := os.Stat(blobPath); statErr == nil {
		existed = true
	} else if !os.IsNotExist(statErr) {
		return nil, false, fmt.Errorf("stat blob: %w", statErr)
	}

	if !existed {
		// Write to a temp file in the same directory, then rename into place
		// so readers never observe a partial blob.
		tmp, tmpErr := os.CreateTemp(filepath.Join(r.root, blobDirName), "tmp_*")
		if tmpErr != nil {
			return nil, false, fmt.Errorf("create temp blob: %w", tmpErr)
		}

		tmpName := tmp.Name()

		if _, writeErr := tmp.Write(data); writeErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)

			return nil, false, fmt.Errorf("write blob: %w", writeErr)
		}

		if closeErr := tmp.Close(); closeErr != nil {
			_ = os.Remove(tmpName)

			return nil, false, fmt.Errorf("close temp blob: %w", closeErr)
		}

		if chmodErr := os.Chmod(tmpName, blobMode); chmodErr != nil {
			_ = os.Remove(tmpName)

			return nil, false, fmt.Errorf("chmod blob: %w", chmodErr)
		}

		if renameErr := os.Rename(tmpName, blobPath); renameErr != nil {
			_ = os.Remove(tmpName)

			return nil, false, fmt.Errorf("store blob: %w", renameErr)
		}
	}

	now := time.Now()

	err = r.modifyMetadata(ctx, id, func(m *blobMetadata) {
		if m.Created.IsZero() {
			m.Created = now
		}

		if m.Name == "" {
			m.Name = name
		}

		m.Size = int64(len(data))
		m.Touched = now
	})
	if err != nil {
		return nil, false, err
	}

	logger.InfoKV(ctx, "Stored resource",
		"resource", id,
		"name", name,
		"size", humanize.Bytes(uint64(len(data))),
		"existed", existed)

	info, err = r.info(ctx, id)

	return info, existed, err
}

// Get returns the blob contents for the given id.
func (r *Repository) Get(_ context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

// Stat returns resource info for the given id without reading the blob.
func (r *Repository) Stat(ctx context.Context, id string) (*domain.ResourceInfo, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	if _, err := os.Stat(r.blobPath(id)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("stat blob: %w", err)
	}

	return r.info(ctx, id)
}

// Has reports whether the repository holds the given id.
func (r *Repository) Has(ctx context.Context, id string) (bool, error) {
	_, err := r.Stat(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// List returns info for every stored resource, sorted by id.
func (r *Repository) List(ctx context.Context) ([]*domain.ResourceInfo, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, blobDirName))
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	infos := make([]*domain.ResourceInfo, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), "tmp_") {
			continue
		}

		info, infoErr := r.info(ctx, entry.Name())
		if infoErr != nil {
			return nil, infoErr
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos, nil
}

// GC removes blobs whose ids are not in the referenced set, returning how
// many blobs were removed and how many bytes were freed.
func (r *Repository) GC(ctx context.Context, referenced map[string]struct{}) (removed int, freed int64, err error) {
	unlock, err := lockFS(ctx, filepath.Join(r.root, lockFileName))
	if err != nil {
		return 0, 0, fmt.Errorf("lock repository: %w", err)
	}

	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			logger.ErrorKV(ctx, "Failed to release repository lock", "error", unlockErr)
		}
	}()

	infos, err := r.List(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, info := range infos {
		if _, keep := referenced[info.ID]; keep {
			continue
		}

		if removeErr := os.Remove(r.blobPath(info.ID)); removeErr != nil {
			return removed, freed, fmt.Errorf("remove blob %s: %w", info.ID, removeErr)
		}

		_ = os.Remove(r.metadataPath(info.ID))

		removed++
		freed += info.Size

		logger.InfoKV(ctx, "Collected unreferenced resource",
			"resource", info.ID,
			"name", info.Name,
			"size", humanize.Bytes(uint64(info.Size)))
	}

	return removed, freed, nil
}

// EnsureMetadata creates missing sidecar files for blobs that predate
// metadata tracking, deriving size and timestamps from the blob itself.
// Returns how many sidecars were created.
func (r *Repository) EnsureMetadata(ctx context.Context) (created int, err error) {
	entries, err := os.ReadDir(filepath.Join(r.root, blobDirName))
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), "tmp_") {
			continue
		}

		if _, statErr := os.Stat(r.metadataPath(entry.Name())); statErr == nil {
			continue
		} else if !os.IsNotExist(statErr) {
			return created, fmt.Errorf("stat metadata: %w", statErr)
		}

		stat, statErr := entry.Info()
		if statErr != nil {
			return created, fmt.Errorf("stat blob: %w", statErr)
		}

		modifyErr := r.modifyMetadata(ctx, entry.Name(), func(m *blobMetadata) {
			m.Size = stat.Size()
			m.Created = stat.ModTime()
			m.Touched = stat.ModTime()
		})
		if modifyErr != nil {
			return created, modifyErr
		}

		created++
	}

	return created, nil
}

// blobPath is the on-disk location of the blob with the given id.
func (r *Repository) blobPath(id string) string {
	return filepath.Join(r.root, blobDirName, id)
}

// info assembles ResourceInfo from the blob and its sidecar.
func (r *Repository) info(ctx context.Context, id string) (*domain.ResourceInfo, error) {
	stat, err := os.Stat(r.blobPath(id))
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}

	meta, err := r.readMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.ResourceInfo{
		ID:      id,
		Name:    meta.Name,
		Size:    stat.Size(),
		Created: meta.Created,
		Touched: meta.Touched,
	}, nil
}

// validateID rejects ids that are not well-formed CIDs. Besides catching
// operator typos early this keeps ids from smuggling path separators.
func validateID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}

	return nil
}
