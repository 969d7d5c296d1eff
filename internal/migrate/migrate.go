package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ps "github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/shopfloor/umpire/internal/archive"
	"github.com/shopfloor/umpire/internal/config"
	"github.com/shopfloor/umpire/internal/logger"
)

const (
	// EnvFileName records the environment version in the data root.
	EnvFileName = ".umpire-env.yaml"
	// MarkerFileName marks a migration in flight for crash recovery.
	MarkerFileName = ".umpire-migration.json"
	// backupDirName holds pre-migration config store archives.
	backupDirName = "backups"

	// dirMode is used for created directories.
	dirMode os.FileMode = 0o755
)

var (
	// ErrMigrationRunning is returned when another process holds the marker.
	ErrMigrationRunning = errors.New("a migration is already running")
	// ErrEnvironmentAhead is returned when the environment version exceeds
	// what this binary knows, meaning the binary is older than the data.
	ErrEnvironmentAhead = errors.New("environment version is ahead of this binary")
	// ErrEnvironmentStale is returned by RequireCurrent for outdated roots.
	ErrEnvironmentStale = errors.New("environment requires migration")
	// errBadMigrationList rejects gaps or disorder in the migration list.
	errBadMigrationList = errors.New("migrations must be numbered contiguously from 1")
)

// Migration is one numbered environment upgrade step.
// Apply must be idempotent: after a crash the same step is re-run.
type Migration struct {
	// Number orders the migration; environments record the highest applied.
	Number int
	// Name describes the migration in logs and markers.
	Name string
	// Apply performs the upgrade against the data root.
	Apply func(ctx context.Context, root string) error
}

// envFile is the YAML document recording the environment version.
type envFile struct {
	Version int `yaml:"version"`
}

// marker is the crash-recovery progress file.
type marker struct {
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	PID       int       `json:"pid"`
}

// Runner applies migrations to one data root.
type Runner struct {
	// root is the umpire data root.
	root string
	// migrations is the ordered upgrade list.
	migrations []Migration
}

// NewRunner validates the migration list and returns a runner for root.
func NewRunner(root string, migrations []Migration) (*Runner, error) {
	for i, m := range migrations {
		if m.Number != i+1 {
			return nil, fmt.Errorf("migration %d at position %d: %w", m.Number, i, errBadMigrationList)
		}
	}

	return &Runner{
		root:       filepath.Clean(root),
		migrations: migrations,
	}, nil
}

// Current reads the recorded environment version, 0 for a fresh root.
func (r *Runner) Current() (int, error) {
	contents, err := os.ReadFile(filepath.Join(r.root, EnvFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("read environment file: %w", err)
	}

	var env envFile
	if err := yaml.Unmarshal(contents, &env); err != nil {
		return 0, fmt.Errorf("decode environment file: %w", err)
	}

	return env.Version, nil
}

// Target returns the version this runner migrates to.
func (r *Runner) Target() int {
	return len(r.migrations)
}

// RequireCurrent verifies the environment matches the binary exactly.
// The server calls this on startup and refuses to run otherwise.
func (r *Runner) RequireCurrent() error {
	current, err := r.Current()
	if err != nil {
		return err
	}

	switch {
	case current < r.Target():
		return fmt.Errorf("environment at version %d, want %d: %w", current, r.Target(), ErrEnvironmentStale)
	case current > r.Target():
		return fmt.Errorf("environment at version %d, binary supports %d: %w", current, r.Target(), ErrEnvironmentAhead)
	default:
		return nil
	}
}

// Run applies all pending migrations in order.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "migrate")

	if err := os.MkdirAll(r.root, dirMode); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}

	if err := r.recoverMarker(ctx); err != nil {
		return err
	}

	current, err := r.Current()
	if err != nil {
		return err
	}

	if current > r.Target() {
		return fmt.Errorf("environment at version %d, binary supports %d: %w", current, r.Target(), ErrEnvironmentAhead)
	}

	if current == r.Target() {
		logger.InfoKV(ctx, "Environment is up to date", "version", current)
		return nil
	}

	if err := r.backup(ctx, current); err != nil {
		return err
	}

	for _, m := range r.migrations[current:] {
		logger.InfoKV(ctx, "Applying migration", "number", m.Number, "name", m.Name)

		if err := r.writeMarker(m); err != nil {
			return err
		}

		if err := m.Apply(ctx, r.root); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Number, m.Name, err)
		}

		if err := r.writeVersion(m.Number); err != nil {
			return err
		}

		if err := os.Remove(filepath.Join(r.root, MarkerFileName)); err != nil {
			return fmt.Errorf("remove migration marker: %w", err)
		}

		logger.InfoKV(ctx, "Migration applied", "number", m.Number, "name", m.Name)
	}

	logger.InfoKV(ctx, "Environment migrated", "version", r.Target())

	return nil
}

// recoverMarker handles a leftover marker from a previous run.
func (r *Runner) recoverMarker(ctx context.Context) error {
	contents, err := os.ReadFile(filepath.Join(r.root, MarkerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read migration marker: %w", err)
	}

	var m marker
	if err := json.Unmarshal(contents, &m); err != nil {
		logger.WarnKV(ctx, "Discarding unreadable migration marker", "error", err)

		return os.Remove(filepath.Join(r.root, MarkerFileName))
	}

	if m.PID != os.Getpid() && processAlive(m.PID) {
		return fmt.Errorf("migration %d started %s by pid %d: %w",
			m.Number, m.StartedAt.Format(time.RFC3339), m.PID, ErrMigrationRunning)
	}

	logger.WarnKV(ctx, "Previous migration run crashed, re-running the interrupted step",
		"number", m.Number, "name", m.Name, "started_at", m.StartedAt.Format(time.RFC3339))

	return nil
}

// backup archives the config store before the first migration of a run.
func (r *Runner) backup(ctx context.Context, current int) error {
	confDir := filepath.Join(r.root, "conf")
	if _, err := os.Stat(confDir); err != nil {
		if os.IsNotExist(err) {
			// Fresh root, nothing worth archiving.
			return nil
		}

		return fmt.Errorf("stat config store: %w", err)
	}

	backupDir := filepath.Join(r.root, backupDirName)
	if err := os.MkdirAll(backupDir, dirMode); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("conf-v%d-%s.tar.gz", current, time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(backupDir, name)

	out, err := os.Create(path) //nolint:gosec // Path is assembled from constants and a timestamp.
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	if err := archive.PackDir(out, confDir); err != nil {
		_ = out.Close()
		_ = os.Remove(path)

		return fmt.Errorf("write backup: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}

	logger.InfoKV(ctx, "Backed up config store", "path", path)

	return nil
}

// writeMarker records the migration about to run.
func (r *Runner) writeMarker(m Migration) error {
	data, err := json.MarshalIndent(&marker{
		Number:    m.Number,
		Name:      m.Name,
		StartedAt: time.Now(),
		PID:       os.Getpid(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal migration marker: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.root, MarkerFileName), data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write migration marker: %w", err)
	}

	return nil
}

// writeVersion records the highest applied migration number.
func (r *Runner) writeVersion(version int) error {
	data, err := yaml.Marshal(&envFile{Version: version})
	if err != nil {
		return fmt.Errorf("marshal environment file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.root, EnvFileName), data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write environment file: %w", err)
	}

	return nil
}

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}
