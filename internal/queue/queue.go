package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopfloor/umpire/internal/config"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
)

const (
	// State subdirectories under the queue root. A task record lives in
	// exactly one of them at a time.
	pendingDirName = "pending"
	leasedDirName  = "leased"
	doneDirName    = "done"

	// recordSuffix terminates task record file names.
	recordSuffix = ".json"

	// DefaultMaxAttempts is how many leases a task gets before a failure
	// becomes permanent.
	DefaultMaxAttempts = 3

	// dirMode is used for queue directories.
	dirMode os.FileMode = 0o755
)

var (
	// ErrEmpty is returned by Lease when no task is pending.
	ErrEmpty = errors.New("no pending build task")
	// ErrTaskNotFound is returned when the task id is unknown.
	ErrTaskNotFound = errors.New("build task not found")
	// ErrNotLeaseOwner is returned when a worker reports a result for a
	// task it does not hold.
	ErrNotLeaseOwner = errors.New("task is leased by another worker")
)

// Queue persists build tasks across server restarts.
type Queue struct {
	// root is the tasks directory of the data root.
	root string
	// maxAttempts caps leases per task before Fail becomes permanent.
	maxAttempts int
	// mu serializes queue mutations within the process. Cross-process
	// exclusion is the server's job: only one umpired owns a data root.
	mu sync.Mutex
}

// NewQueue opens (creating if needed) a queue at root.
func NewQueue(root string) (*Queue, error) {
	q := &Queue{
		root:        filepath.Clean(root),
		maxAttempts: DefaultMaxAttempts,
	}

	for _, dir := range []string{pendingDirName, leasedDirName, doneDirName} {
		if err := os.MkdirAll(filepath.Join(q.root, dir), dirMode); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}

	return q, nil
}

// Submit enqueues a build request and returns the stored task.
func (q *Queue) Submit(ctx context.Context, req *domain.BuildRequest) (*domain.BuildTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := &domain.BuildTask{
		ID:      uuid.NewString(),
		Request: req.Clone(),
		State:   domain.TaskPending,
		Created: time.Now().UTC(),
	}

	if err := q.writeRecord(pendingDirName, task); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Queued build task",
		"task", task.ID,
		"bundle", req.BundleID,
		"requester", req.Requester.String())

	return task.Clone(), nil
}

// Lease hands the oldest pending task to a worker for ttl. Expired leases
// are swept first so a crashed worker's task becomes available again.
func (q *Queue) Lease(ctx context.Context, owner string, ttl time.Duration) (*domain.BuildTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.sweepExpiredLocked(ctx); err != nil {
		return nil, err
	}

	pending, err := q.readState(pendingDirName)
	if err != nil {
		return nil, err
	}

	if len(pending) == 0 {
		return nil, ErrEmpty
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Created.Before(pending[j].Created)
	})

	task := pending[0]
	task.State = domain.TaskLeased
	task.Attempts++
	task.LeaseOwner = owner
	task.LeaseDeadline = time.Now().UTC().Add(ttl)

	if err := q.moveRecord(pendingDirName, leasedDirName, task); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Leased build task",
		"task", task.ID,
		"worker", owner,
		"attempt", task.Attempts,
		"deadline", task.LeaseDeadline.Format(time.RFC3339))

	return task.Clone(), nil
}

// Complete records a successful build for a leased task.
func (q *Queue) Complete(ctx context.Context, id, owner string, result *domain.BuildResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.readLeased(id, owner)
	if err != nil {
		return err
	}

	task.State = domain.TaskDone
	task.Result = result.Clone()
	task.Result.Finished = time.Now().UTC()

	if err := q.moveRecord(leasedDirName, doneDirName, task); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Build task completed",
		"task", id,
		"worker", owner,
		"archive", task.Result.ArchiveResource,
		"config_version", task.Result.ConfigVersion)

	return nil
}

// Fail records a failed attempt. The task returns to pending until its
// attempts run out, then it is finished with the failure message.
func (q *Queue) Fail(ctx context.Context, id, owner, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.readLeased(id, owner)
	if err != nil {
		return err
	}

	return q.failLocked(ctx, task, reason)
}

// Get returns one task by id, searching every state.
func (q *Queue) Get(_ context.Context, id string) (*domain.BuildTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, dir := range []string{pendingDirName, leasedDirName, doneDirName} {
		task, err := q.readRecord(dir, id)
		if err == nil {
			return task, nil
		}

		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
}

// List returns every task, oldest first.
func (q *Queue) List(_ context.Context) ([]*domain.BuildTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var tasks []*domain.BuildTask

	for _, dir := range []string{pendingDirName, leasedDirName, doneDirName} {
		state, err := q.readState(dir)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, state...)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Created.Before(tasks[j].Created)
	})

	return tasks, nil
}

// PendingCount reports how many tasks wait for a worker.
func (q *Queue) PendingCount(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.readState(pendingDirName)
	if err != nil {
		return 0, err
	}

	return len(pending), nil
}

// SweepExpired requeues (or permanently fails) tasks whose lease ran out.
// The server calls this periodically for workers that never report back.
func (q *Queue) SweepExpired(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.sweepExpiredLocked(ctx)
}

func (q *Queue) sweepExpiredLocked(ctx context.Context) (int, error) {
	leased, err := q.readState(leasedDirName)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	swept := 0

	for _, task := range leased {
		if task.LeaseDeadline.After(now) {
			continue
		}

		logger.WarnKV(ctx, "Build task lease expired",
			"task", task.ID,
			"worker", task.LeaseOwner,
			"deadline", task.LeaseDeadline.Format(time.RFC3339))

		if err := q.failLocked(ctx, task, "lease expired"); err != nil {
			return swept, err
		}

		swept++
	}

	return swept, nil
}

// failLocked moves a leased task back to pending or, out of attempts,
// to done with the failure recorded.
func (q *Queue) failLocked(ctx context.Context, task *domain.BuildTask, reason string) error {
	if task.Attempts >= q.maxAttempts {
		task.State = domain.TaskDone
		task.Result = &domain.BuildResult{
			Error:    reason,
			Finished: time.Now().UTC(),
		}

		if err := q.moveRecord(leasedDirName, doneDirName, task); err != nil {
			return err
		}

		logger.WarnKV(ctx, "Build task failed permanently",
			"task", task.ID,
			"attempts", task.Attempts,
			"reason", reason)

		return nil
	}

	task.State = domain.TaskPending
	task.LeaseOwner = ""
	task.LeaseDeadline = time.Time{}

	if err := q.moveRecord(leasedDirName, pendingDirName, task); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Build task requeued",
		"task", task.ID,
		"attempts", task.Attempts,
		"reason", reason)

	return nil
}

// readLeased loads a leased task and checks the caller owns it.
func (q *Queue) readLeased(id, owner string) (*domain.BuildTask, error) {
	task, err := q.readRecord(leasedDirName, id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
		}

		return nil, err
	}

	if task.LeaseOwner != owner {
		return nil, fmt.Errorf("task %s held by %q: %w", id, task.LeaseOwner, ErrNotLeaseOwner)
	}

	return task, nil
}

// recordPath is the on-disk location of a task record in the given state.
func (q *Queue) recordPath(dir, id string) string {
	return filepath.Join(q.root, dir, id+recordSuffix)
}

// readRecord loads one task record. Missing records surface as the raw
// os.IsNotExist error so callers can distinguish them.
func (q *Queue) readRecord(dir, id string) (*domain.BuildTask, error) {
	data, err := os.ReadFile(q.recordPath(dir, id))
	if err != nil {
		return nil, err
	}

	var task domain.BuildTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task record %s: %w", id, err)
	}

	return &task, nil
}

// readState loads every task record in one state directory.
func (q *Queue) readState(dir string) ([]*domain.BuildTask, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, dir))
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", dir, err)
	}

	tasks := make([]*domain.BuildTask, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}

		task, err := q.readRecord(dir, strings.TrimSuffix(name, recordSuffix))
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}

// writeRecord stores a task record in the given state directory.
func (q *Queue) writeRecord(dir string, task *domain.BuildTask) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task record %s: %w", task.ID, err)
	}

	path := q.recordPath(dir, task.ID)

	// Temp file plus rename keeps half-written records out of the queue.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write task record: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("store task record: %w", err)
	}

	return nil
}

// moveRecord writes the task into its new state and removes the old record.
func (q *Queue) moveRecord(from, to string, task *domain.BuildTask) error {
	if err := q.writeRecord(to, task); err != nil {
		return err
	}

	if err := os.Remove(q.recordPath(from, task.ID)); err != nil {
		return fmt.Errorf("remove old task record: %w", err)
	}

	return nil
}
