package vendorsync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobOutcome is the result a worker acknowledges a running job with. Final
// marks a failure that must not be retried.
type JobOutcome struct {
	Status JobStatus
	Result *SyncResult
	Err    error
	Final  bool
}

// Succeeded builds a completed outcome
func Succeeded(result *SyncResult) JobOutcome {
	return JobOutcome{Status: JobStatusCompleted, Result: result}
}

// Failed builds a failed outcome
func Failed(err error, partial *SyncResult) JobOutcome {
	return JobOutcome{Status: JobStatusFailed, Err: err, Result: partial}
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	VendorID string
	SyncType SyncType
	Statuses []JobStatus
	Limit    int
}

// JobQueue holds one ordered queue per domain plus the "all" umbrella queue.
// Status changes go exclusively through MarkRunning, Ack, Requeue, Cancel
// and Reopen, each serialized per job id.
type JobQueue interface {
	// Enqueue inserts a pending job ordered by priority (desc) then enqueue order
	Enqueue(ctx context.Context, job *SyncJob) (uuid.UUID, error)
	// DequeueNext pops the highest-priority ready job of a queue, or nil
	DequeueNext(ctx context.Context, queue SyncType) (*SyncJob, error)
	// MarkRunning moves a pending job to running; it fails for any other status
	MarkRunning(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	// Ack records the outcome of a running job
	Ack(ctx context.Context, id uuid.UUID, outcome JobOutcome) (*SyncJob, error)
	// Requeue moves a failed job back to pending, ready at readyAt
	Requeue(ctx context.Context, id uuid.UUID, readyAt time.Time) (*SyncJob, error)
	// Reopen re-enqueues a terminally failed job on operator request
	Reopen(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	// Cancel removes a pending job or flags a running one
	Cancel(ctx context.Context, id uuid.UUID) (*SyncJob, error)

	GetJob(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// Matches reports whether job satisfies the filter
func (f JobFilter) Matches(job *SyncJob) bool {
	if f.VendorID != "" && job.VendorID != f.VendorID {
		return false
	}
	if f.SyncType != "" && job.SyncType != f.SyncType {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if job.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
