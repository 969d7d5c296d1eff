package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/logger"
)

// blobMetadata exists as `meta/<id>.json` next to every stored blob.
type blobMetadata struct {
	// Name is the original upload file name, may be empty.
	Name string `json:"name,omitempty"`
	// Size is the blob size in bytes.
	Size int64 `json:"size"`
	// Created is when the blob first entered the repository.
	Created time.Time `json:"created"`
	// Touched is when the blob was last re-uploaded or referenced.
	Touched time.Time `json:"touched"`
}

// metadataPath is the path to the JSON sidecar for the given blob id.
func (r *Repository) metadataPath(id string) string {
	return filepath.Join(r.root, metaDirName, id+".json")
}

// readMetadata reads the sidecar file if it exists and is not corrupted.
// A missing or unparsable file yields a zero value, matching how the
// repository recovers after partial writes.
func (r *Repository) readMetadata(ctx context.Context, id string) (blobMetadata, error) {
	var m blobMetadata

	blob, err := os.ReadFile(r.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}

		return m, fmt.Errorf("read metadata for %s: %w", id, err)
	}

	if len(blob) != 0 {
		if err := json.Unmarshal(blob, &m); err != nil {
			logger.WarnKV(ctx, "Ignoring bad metadata file", "resource", id, "error", err)

			m = blobMetadata{}
		}
	}

	return m, nil
}

// modifyMetadata reads the sidecar (if present), calls the callback to update
// it, and stores the result.
func (r *Repository) modifyMetadata(ctx context.Context, id string, cb func(m *blobMetadata)) error {
	m, err := r.readMetadata(ctx, id)
	if err != nil {
		return err
	}

	cb(&m)

	blob, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", id, err)
	}

	if err := os.WriteFile(r.metadataPath(id), blob, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write metadata for %s: %w", id, err)
	}

	return nil
}
