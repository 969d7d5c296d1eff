package configstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
)

const (
	// documentPrefix and documentSuffix frame the version number in file names.
	documentPrefix = "umpire."
	documentSuffix = ".json"

	// activeLinkName points at the deployed config document.
	activeLinkName = "active"
	// stagingLinkName points at the config prepared for the next deployment.
	stagingLinkName = "staging"

	// dirMode is used for the store directory.
	dirMode os.FileMode = 0o755
)

var (
	// ErrNotFound is returned when the requested config version (or the
	// active/staging link in a fresh environment) does not exist.
	ErrNotFound = errors.New("config not found")
	// ErrNothingStaged is returned by Deploy and Unstage when no config is staged.
	ErrNothingStaged = errors.New("no config is staged")
	// ErrAlreadyStaged is returned by Stage when a staging config exists.
	// Operators must unstage or deploy it first.
	ErrAlreadyStaged = errors.New("a config is already staged")
)

// Store persists versioned config documents with staging/active promotion.
type Store struct {
	// root is the directory holding documents, links and history.
	root string
	// mu serializes store mutations within the process. Cross-process
	// exclusion is the server's job: only one umpired owns a data root.
	mu sync.Mutex
}

// NewStore opens (creating if needed) a config store at root.
func NewStore(root string) (*Store, error) {
	s := &Store{root: filepath.Clean(root)}

	if err := os.MkdirAll(s.root, dirMode); err != nil {
		return nil, fmt.Errorf("create config store dir: %w", err)
	}

	return s, nil
}

// Save validates and writes the document as a new immutable version.
func (s *Store) Save(ctx context.Context, cfg *domain.Config) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	versions, err := s.versionsLocked()
	if err != nil {
		return 0, err
	}

	version := 1
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	data, err := encodeDocument(cfg)
	if err != nil {
		return 0, err
	}

	path := filepath.Join(s.root, documentName(version))

	// Temp file plus rename keeps half-written documents out of the store.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return 0, fmt.Errorf("write config document: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return 0, fmt.Errorf("store config document: %w", err)
	}

	logger.InfoKV(ctx, "Saved config version", "version", version, "bundles", len(cfg.Bundles))

	return version, nil
}

// Load reads one stored version.
func (s *Store) Load(_ context.Context, version int) (*domain.Config, error) {
	data, err := os.ReadFile(filepath.Join(s.root, documentName(version)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("version %d: %w", version, ErrNotFound)
		}

		return nil, fmt.Errorf("read config document: %w", err)
	}

	return decodeDocument(data)
}

// Versions lists stored version numbers in ascending order.
func (s *Store) Versions(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.versionsLocked()
}

// Active returns the deployed config and its version.
// A fresh environment with no deployment yet returns ErrNotFound.
func (s *Store) Active(ctx context.Context) (*domain.Config, int, error) {
	return s.resolveLink(ctx, activeLinkName)
}

// Staging returns the staged config and its version.
func (s *Store) Staging(ctx context.Context) (*domain.Config, int, error) {
	return s.resolveLink(ctx, stagingLinkName)
}

// Stage points the staging link at the given version (0 means latest).
// Staging over an existing staging config is refused.
func (s *Store) Stage(ctx context.Context, version int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.linkVersion(stagingLinkName); err == nil {
		return 0, ErrAlreadyStaged
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	if version == 0 {
		versions, err := s.versionsLocked()
		if err != nil {
			return 0, err
		}

		if len(versions) == 0 {
			return 0, ErrNotFound
		}

		version = versions[len(versions)-1]
	}

	if _, err := os.Stat(filepath.Join(s.root, documentName(version))); err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("version %d: %w", version, ErrNotFound)
		}

		return 0, fmt.Errorf("stat config document: %w", err)
	}

	if err := s.setLink(stagingLinkName, documentName(version)); err != nil {
		return 0, err
	}

	logger.InfoKV(ctx, "Staged config version", "version", version)

	return version, nil
}

// Unstage removes the staging link.
func (s *Store) Unstage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.root, stagingLinkName))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNothingStaged
		}

		return fmt.Errorf("remove staging link: %w", err)
	}

	logger.Info(ctx, "Unstaged config")

	return nil
}

// Deploy promotes the staged config to active and drops the staging link.
// The promotion itself is a single symlink swap: readers observe either the
// previous active document or the new one, never an intermediate state.
func (s *Store) Deploy(ctx context.Context, actor *domain.Actor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.linkVersion(stagingLinkName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNothingStaged
		}

		return 0, err
	}

	if err := s.setLink(activeLinkName, documentName(version)); err != nil {
		return 0, err
	}

	if err := os.Remove(filepath.Join(s.root, stagingLinkName)); err != nil {
		return 0, fmt.Errorf("remove staging link: %w", err)
	}

	if err := s.appendHistory(&domain.DeploymentRecord{
		Version:   version,
		Timestamp: time.Now(),
		Actor:     actor.Clone(),
		Note:      "deploy",
	}); err != nil {
		return 0, err
	}

	logger.InfoKV(ctx, "Deployed config version", "version", version, "actor", actor.String())

	return version, nil
}

// Rollback re-activates a previously stored version directly.
func (s *Store) Rollback(ctx context.Context, version int, actor *domain.Actor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Join(s.root, documentName(version))); err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("version %d: %w", version, ErrNotFound)
		}

		return 0, fmt.Errorf("stat config document: %w", err)
	}

	if err := s.setLink(activeLinkName, documentName(version)); err != nil {
		return 0, err
	}

	if err := s.appendHistory(&domain.DeploymentRecord{
		Version:   version,
		Timestamp: time.Now(),
		Actor:     actor.Clone(),
		Note:      "rollback",
	}); err != nil {
		return 0, err
	}

	logger.InfoKV(ctx, "Rolled back to config version", "version", version, "actor", actor.String())

	return version, nil
}

// resolveLink loads the config a named link points at.
func (s *Store) resolveLink(ctx context.Context, name string) (*domain.Config, int, error) {
	s.mu.Lock()
	version, err := s.linkVersion(name)
	s.mu.Unlock()

	if err != nil {
		return nil, 0, err
	}

	cfg, err := s.Load(ctx, version)
	if err != nil {
		return nil, 0, err
	}

	return cfg, version, nil
}

// linkVersion reads a symlink and parses the version from its target.
func (s *Store) linkVersion(name string) (int, error) {
	target, err := os.Readlink(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%s: %w", name, ErrNotFound)
		}

		return 0, fmt.Errorf("read %s link: %w", name, err)
	}

	return parseDocumentName(filepath.Base(target))
}

// setLink atomically points the named symlink at a document file.
func (s *Store) setLink(name, target string) error {
	tmp := filepath.Join(s.root, name+".tmp")

	// A leftover temp link from a crashed swap is safe to discard.
	_ = os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create %s link: %w", name, err)
	}

	if err := os.Rename(tmp, filepath.Join(s.root, name)); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("swap %s link: %w", name, err)
	}

	return nil
}

// versionsLocked scans the store directory for document files.
func (s *Store) versionsLocked() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list config store: %w", err)
	}

	versions := make([]int, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		version, err := parseDocumentName(entry.Name())
		if err != nil {
			continue
		}

		versions = append(versions, version)
	}

	sort.Ints(versions)

	return versions, nil
}

// documentName renders the file name for a version.
func documentName(version int) string {
	return fmt.Sprintf("%s%04d%s", documentPrefix, version, documentSuffix)
}

// parseDocumentName extracts the version from a document file name.
func parseDocumentName(name string) (int, error) {
	if !strings.HasPrefix(name, documentPrefix) || !strings.HasSuffix(name, documentSuffix) {
		return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	version, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, documentPrefix), documentSuffix))
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	return version, nil
}
