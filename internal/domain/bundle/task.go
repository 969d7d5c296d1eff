package bundle

import "time"

// TaskState is the lifecycle state of a build task.
type TaskState string

// Build task lifecycle states. Pending tasks wait for a worker, leased tasks
// are owned by one, done tasks carry a result (possibly an error).
const (
	TaskPending TaskState = "pending"
	TaskLeased  TaskState = "leased"
	TaskDone    TaskState = "done"
)

// BuildRequest describes a bundle the operator wants built.
type BuildRequest struct {
	// BundleID is the id the built bundle will be registered under.
	BundleID string
	// Note is free-form operator text carried into the bundle.
	Note string
	// Payloads maps payload type to the id of an already uploaded resource.
	Payloads map[string]string
	// Requester is who submitted the request.
	Requester *Actor
}

// Clone returns a deep copy of the request.
func (r *BuildRequest) Clone() *BuildRequest {
	if r == nil {
		return nil
	}

	cloned := &BuildRequest{
		BundleID:  r.BundleID,
		Note:      r.Note,
		Payloads:  make(map[string]string, len(r.Payloads)),
		Requester: r.Requester.Clone(),
	}

	for payloadType, resource := range r.Payloads {
		cloned.Payloads[payloadType] = resource
	}

	return cloned
}

// BuildResult is what a worker reports back for a finished task.
type BuildResult struct {
	// ArchiveResource is the id of the packed bundle archive, empty on failure.
	ArchiveResource string
	// ConfigVersion is the config version the built bundle was staged in,
	// 0 on failure.
	ConfigVersion int
	// Error holds the failure message for permanently failed tasks.
	Error string
	// Finished is when the worker reported the result.
	Finished time.Time
}

// Clone returns a copy of the result.
func (r *BuildResult) Clone() *BuildResult {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}

// BuildTask is a queued build request with its lease bookkeeping.
type BuildTask struct {
	// ID is the queue-assigned task identifier.
	ID string
	// Request is the originating build request.
	Request *BuildRequest
	// State is the current lifecycle state.
	State TaskState
	// Created is when the task was submitted.
	Created time.Time
	// Attempts counts how many times the task has been leased.
	Attempts int
	// LeaseOwner names the worker currently holding the lease.
	LeaseOwner string
	// LeaseDeadline is when the current lease expires.
	LeaseDeadline time.Time
	// Result is set once the task is done.
	Result *BuildResult
}

// Clone returns a deep copy of the task.
func (t *BuildTask) Clone() *BuildTask {
	if t == nil {
		return nil
	}

	cloned := *t
	cloned.Request = t.Request.Clone()
	cloned.Result = t.Result.Clone()

	return &cloned
}
