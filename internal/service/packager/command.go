package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/service/common"
)

// ManifestFilename is the manifest expected inside a bundle directory.
const ManifestFilename = "bundle.yaml"

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// BundleDir is the local directory holding the manifest and payloads.
	BundleDir string
	// Deploy promotes the imported bundle immediately instead of leaving
	// it staged for review.
	Deploy bool
}

var (
	// errBundleDirRequired is returned when no bundle directory is given.
	errBundleDirRequired = errors.New("bundle directory must be provided")
	// errNoPayloads is returned for a manifest without payload entries.
	errNoPayloads = errors.New("manifest names no payloads")
)

// manifest is the on-disk description of a bundle directory.
type manifest struct {
	// ID is the bundle id to register.
	ID string `yaml:"id"`
	// Note is free-form operator text carried into the bundle.
	Note string `yaml:"note"`
	// Payloads maps payload type to a file name inside the directory.
	Payloads map[string]string `yaml:"payloads"`
}

// Run executes the packaging workflow: read the manifest, upload every
// payload, import the bundle and optionally deploy it.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "umpire-packager")

	if opts.BundleDir == "" {
		return errBundleDirRequired
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	m, err := loadManifest(filepath.Join(opts.BundleDir, ManifestFilename))
	if err != nil {
		return err
	}

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	b, err := uploadPayloads(ctx, client, opts.BundleDir, m)
	if err != nil {
		return err
	}

	version, err := client.ImportBundle(ctx, b, actor)
	if err != nil {
		return fmt.Errorf("import bundle: %w", err)
	}

	logger.InfoKV(ctx, "Bundle imported", "bundle", b.ID, "staged_version", version)

	if opts.Deploy {
		deployed, err := client.Deploy(ctx, actor)
		if err != nil {
			return fmt.Errorf("deploy: %w", err)
		}

		logger.InfoKV(ctx, "Config deployed", "version", deployed)

		return nil
	}

	logger.Infof(ctx, "Version %d is staged; deploy it with: umpire-admin deploy", version)

	return nil
}

// loadManifest reads and validates a bundle manifest.
func loadManifest(path string) (*manifest, error) {
	contents, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if m.ID == "" {
		return nil, domain.ErrEmptyBundleID
	}

	if len(m.Payloads) == 0 {
		return nil, errNoPayloads
	}

	return &m, nil
}

// uploadPayloads stores every manifest payload and assembles the bundle.
func uploadPayloads(ctx context.Context, client *api.Client, dir string, m *manifest) (*domain.Bundle, error) {
	b := &domain.Bundle{
		ID:       m.ID,
		Note:     m.Note,
		Payloads: make(map[string]*domain.Payload, len(m.Payloads)),
	}

	// Sorted for deterministic upload order in logs.
	types := make([]string, 0, len(m.Payloads))
	for payloadType := range m.Payloads {
		types = append(types, payloadType)
	}

	sort.Strings(types)

	for _, payloadType := range types {
		name := m.Payloads[payloadType]

		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // Operator-supplied path.
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", payloadType, err)
		}

		info, err := client.AddResource(ctx, name, data)
		if err != nil {
			return nil, fmt.Errorf("upload payload %q: %w", payloadType, err)
		}

		logger.InfoKV(ctx, "Uploaded payload",
			"type", payloadType,
			"name", name,
			"size", humanize.Bytes(uint64(info.Size)),
			"resource", info.ID)

		b.Payloads[payloadType] = &domain.Payload{
			Resource: info.ID,
			Name:     info.Name,
			Size:     info.Size,
		}
	}

	return b, nil
}
