package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds connection and storage parameters shared by the umpire binaries.
type Config struct {
	// ServerAddress is the gRPC server address for umpire service connections.
	ServerAddress string `yaml:"server_addr"`
	// DataRoot is the directory holding resources, config versions and tasks.
	// Only the server and the migration runner touch it.
	DataRoot string `yaml:"data_root"`
	// FetchDir is where the DUT-side fetcher places payload files.
	FetchDir string `yaml:"fetch_dir"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is how often the build worker polls for tasks.
	PollInterval time.Duration `yaml:"poll_interval"`
	// LeaseTTL is how long a leased build task stays owned by a worker
	// before the server hands it out again.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

const (
	// DefaultConfigFilename is the default filename for connection settings.
	DefaultConfigFilename = "umpire-settings.yaml"

	// DefaultDataRoot is the default server data directory.
	DefaultDataRoot = "umpire-data"

	// DefaultFetchDir is the default destination for fetched payload files.
	DefaultFetchDir = "."

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 10 * time.Second

	// DefaultPollInterval is the default worker polling interval.
	DefaultPollInterval = 30 * time.Second

	// DefaultLeaseTTL is the default build task lease duration.
	DefaultLeaseTTL = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(settings *Config) error {
	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.DataRoot == "" {
		settings.DataRoot = DefaultDataRoot
	}

	if settings.FetchDir == "" {
		settings.FetchDir = DefaultFetchDir
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}

	if settings.LeaseTTL <= 0 {
		settings.LeaseTTL = DefaultLeaseTTL
	}

	return nil
}
