package fetch

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/dustin/go-humanize"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/repository/resources"
	"github.com/shopfloor/umpire/internal/service/common"

	// Ensure SHA256 is available for payload verification.
	_ "crypto/sha256"
)

const (
	// MarkerFilename marks that a fetch is running right now to avoid
	// parallel execution inside one fetch directory.
	MarkerFilename = ".umpire-fetch-marker"

	// markerLifetime is the period after which a stale fetch marker is ignored.
	markerLifetime = 15 * time.Minute

	// DefaultChecksumFunction verifies payloads before they are swapped in.
	// SHA-256 matches the hash inside resource ids, so one digest serves both.
	DefaultChecksumFunction crypto.Hash = crypto.SHA256

	// payloadMode is used for fetched payload files.
	payloadMode os.FileMode = 0o644
)

var (
	// errFetchRunning indicates another fetch owns the marker.
	errFetchRunning = errors.New("a fetch is already running in this directory")
	// errResourceCorrupted indicates downloaded bytes do not match their id.
	errResourceCorrupted = errors.New("downloaded resource does not match its id")
)

// Options controls the umpire-fetch process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// FetchDir overrides the fetch directory from the settings file.
	FetchDir string
	// BundleID selects a bundle; the config's default bundle when empty.
	BundleID string
}

// Run downloads the selected bundle's payloads into the fetch directory.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "umpire-fetch")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	fetchDir := cfg.FetchDir
	if opts.FetchDir != "" {
		fetchDir = opts.FetchDir
	}

	if err := os.MkdirAll(fetchDir, 0o755); err != nil {
		return fmt.Errorf("create fetch dir: %w", err)
	}

	if isFetchRunningNow(ctx, fetchDir) {
		return errFetchRunning
	}

	markerPath := filepath.Join(fetchDir, MarkerFilename)
	if err := os.WriteFile(markerPath, []byte{}, payloadMode); err != nil {
		return fmt.Errorf("write fetch marker: %w", err)
	}

	defer func() {
		_ = os.Remove(markerPath)
	}()

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	deployed, version, err := client.GetConfig(ctx, "active")
	if err != nil {
		return fmt.Errorf("get active config: %w", err)
	}

	bundleID := opts.BundleID
	if bundleID == "" {
		bundleID = deployed.DefaultBundle
	}

	b, err := deployed.FindBundle(bundleID)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fetching bundle",
		"bundle", b.ID,
		"config_version", version,
		"fetch_dir", fetchDir)

	fetched, skipped, err := fetchPayloads(ctx, client, b, fetchDir)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fetch finished", "fetched", fetched, "up_to_date", skipped)

	return nil
}

// fetchPayloads downloads every payload whose local copy is missing or stale.
func fetchPayloads(ctx context.Context, client *api.Client, b *domain.Bundle, fetchDir string) (fetched, skipped int, err error) {
	// Sorted for deterministic download order in logs.
	types := make([]string, 0, len(b.Payloads))
	for payloadType := range b.Payloads {
		types = append(types, payloadType)
	}

	sort.Strings(types)

	for _, payloadType := range types {
		payload := b.Payloads[payloadType]
		localPath := filepath.Join(fetchDir, payload.Name)

		if localMatches(localPath, payload.Resource) {
			logger.InfoKV(ctx, "Payload up to date", "type", payloadType, "name", payload.Name)

			skipped++

			continue
		}

		if err := fetchOne(ctx, client, payloadType, payload, localPath); err != nil {
			return fetched, skipped, err
		}

		fetched++
	}

	return fetched, skipped, nil
}

// fetchOne downloads, verifies and atomically installs a single payload.
func fetchOne(ctx context.Context, client *api.Client, payloadType string, payload *domain.Payload, localPath string) error {
	data, err := client.GetResource(ctx, payload.Resource)
	if err != nil {
		return fmt.Errorf("payload %q: %w", payloadType, err)
	}

	id, err := resources.ID(data)
	if err != nil {
		return fmt.Errorf("payload %q: %w", payloadType, err)
	}

	if id != payload.Resource {
		return fmt.Errorf("payload %q: %w", payloadType, errResourceCorrupted)
	}

	// go-update needs an existing target to swap.
	if _, err := os.Stat(localPath); err != nil && os.IsNotExist(err) {
		if err := os.WriteFile(localPath, nil, payloadMode); err != nil {
			return fmt.Errorf("create payload file: %w", err)
		}
	}

	hasher := DefaultChecksumFunction.New()
	_, _ = hasher.Write(data)

	err = goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: localPath,
		TargetMode: payloadMode,
		Checksum:   hasher.Sum(nil),
		Hash:       DefaultChecksumFunction,
	})
	if err != nil {
		return fmt.Errorf("install payload %q: %w", payloadType, err)
	}

	// go-update leaves the previous content next to the target.
	oldPath := localPath + ".old"
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.InfoKV(ctx, "Fetched payload",
		"type", payloadType,
		"name", payload.Name,
		"size", humanize.Bytes(uint64(len(data))),
		"resource", payload.Resource)

	return nil
}

// localMatches reports whether the local file's content id equals want.
func localMatches(path, want string) bool {
	data, err := os.ReadFile(path) //nolint:gosec // Path is built from the fetch dir.
	if err != nil {
		return false
	}

	id, err := resources.ID(data)
	if err != nil {
		return false
	}

	return id == want
}

// isFetchRunningNow checks presence of a marker file and cleans it up if it
// looks stale.
func isFetchRunningNow(ctx context.Context, fetchDir string) bool {
	markerPath := filepath.Join(fetchDir, MarkerFilename)

	fileInfo, err := os.Stat(markerPath)
	if err != nil {
		return false
	}

	if time.Since(fileInfo.ModTime()) <= markerLifetime {
		return true
	}

	logger.Info(ctx, "The fetch marker is too old, attempting cleanup")

	return os.Remove(markerPath) != nil
}
