package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// legacyConfigName is the single-file YAML config used before the store
// became versioned.
const legacyConfigName = "umpire.yaml"

// Default returns the migration list for the current environment layout.
func Default() []Migration {
	return []Migration{
		{
			Number: 1,
			Name:   "create-layout",
			Apply:  createLayout,
		},
		{
			Number: 2,
			Name:   "import-legacy-config",
			Apply:  importLegacyConfig,
		},
		{
			Number: 3,
			Name:   "backfill-resource-metadata",
			Apply:  backfillResourceMetadata,
		},
	}
}

// createLayout establishes the directory layout under the data root.
func createLayout(_ context.Context, root string) error {
	for _, dir := range []string{"conf", "resources", "tasks"} {
		if err := os.MkdirAll(filepath.Join(root, dir), dirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}

// legacyDocument mirrors the pre-versioning YAML config shape.
type legacyDocument struct {
	DefaultBundle string         `yaml:"default_bundle"`
	Bundles       []legacyBundle `yaml:"bundles"`
}

type legacyBundle struct {
	ID       string                   `yaml:"id"`
	Note     string                   `yaml:"note"`
	Payloads map[string]legacyPayload `yaml:"payloads"`
}

type legacyPayload struct {
	Resource string `yaml:"resource"`
	Name     string `yaml:"name"`
	Size     int64  `yaml:"size"`
}

// importLegacyConfig converts a single-file YAML config into the first
// versioned document and deploys it, then retires the legacy file.
func importLegacyConfig(ctx context.Context, root string) error {
	legacyPath := filepath.Join(root, legacyConfigName)

	contents, err := os.ReadFile(legacyPath) //nolint:gosec // Path is assembled from constants.
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read legacy config: %w", err)
	}

	store, err := configstore.NewStore(filepath.Join(root, "conf"))
	if err != nil {
		return err
	}

	versions, err := store.Versions(ctx)
	if err != nil {
		return err
	}

	// A crashed earlier attempt may have saved the converted document already.
	if len(versions) == 0 {
		cfg, err := convertLegacyDocument(contents)
		if err != nil {
			return err
		}

		version, err := store.Save(ctx, cfg)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Imported legacy config", "version", version, "bundles", len(cfg.Bundles))
	}

	// A run interrupted between Save and Deploy leaves the document stored
	// but never promoted; finish the promotion whenever no active link exists.
	if _, _, err := store.Active(ctx); err != nil {
		if !errors.Is(err, configstore.ErrNotFound) {
			return err
		}

		// A leftover staging link from the interrupted run is fine; the
		// deploy below consumes it either way.
		if _, err := store.Stage(ctx, 0); err != nil && !errors.Is(err, configstore.ErrAlreadyStaged) {
			return err
		}

		hostname, _ := os.Hostname()

		if _, err := store.Deploy(ctx, &domain.Actor{
			Hostname: hostname,
			Username: "umpire-migrate",
		}); err != nil {
			return err
		}
	}

	if err := os.Rename(legacyPath, legacyPath+".migrated"); err != nil {
		return fmt.Errorf("retire legacy config: %w", err)
	}

	return nil
}

// convertLegacyDocument parses the pre-versioning YAML shape into a config
// document.
func convertLegacyDocument(contents []byte) (*domain.Config, error) {
	var legacy legacyDocument
	if err := yaml.Unmarshal(contents, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy config: %w", err)
	}

	cfg := domain.NewConfig()
	cfg.DefaultBundle = legacy.DefaultBundle

	for _, b := range legacy.Bundles {
		converted := &domain.Bundle{
			ID:       b.ID,
			Note:     b.Note,
			Payloads: make(map[string]*domain.Payload, len(b.Payloads)),
		}

		for payloadType, payload := range b.Payloads {
			converted.Payloads[payloadType] = &domain.Payload{
				Resource: payload.Resource,
				Name:     payload.Name,
				Size:     payload.Size,
			}
		}

		cfg.Bundles = append(cfg.Bundles, converted)
	}

	return cfg, nil
}

// backfillResourceMetadata creates metadata sidecars for blobs stored before
// the repository tracked them.
func backfillResourceMetadata(ctx context.Context, root string) error {
	repo, err := resources.NewRepository(filepath.Join(root, "resources"))
	if err != nil {
		return err
	}

	created, err := repo.EnsureMetadata(ctx)
	if err != nil {
		return err
	}

	if created > 0 {
		logger.InfoKV(ctx, "Backfilled resource metadata", "sidecars", created)
	}

	return nil
}
