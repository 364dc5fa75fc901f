package vendorsync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is used when neither the vendor nor the engine config sets one
const DefaultMaxRetries = 3

// SyncResult is the aggregated outcome of a job: one batch report per domain
// that ran, plus the domains skipped because the adapter lacks the capability.
type SyncResult struct {
	Reports map[SyncType]*BatchReport `json:"reports,omitempty"`
	Skipped []SyncType                `json:"skipped,omitempty"`
}

// NewSyncResult creates an empty result
func NewSyncResult() *SyncResult {
	return &SyncResult{Reports: make(map[SyncType]*BatchReport)}
}

// Totals sums processed/succeeded/failed/flagged across domains
func (r *SyncResult) Totals() BatchReport {
	var total BatchReport
	if r == nil {
		return total
	}
	for _, rep := range r.Reports {
		total.Processed += rep.Processed
		total.Succeeded += rep.Succeeded
		total.Failed += rep.Failed
		total.Flagged += rep.Flagged
	}
	return total
}

// SyncJob is one unit of synchronization work
type SyncJob struct {
	ID              uuid.UUID      `json:"id"`
	VendorID        string         `json:"vendor_id"`
	SyncType        SyncType       `json:"sync_type"`
	Priority        int            `json:"priority"`
	Status          JobStatus      `json:"status"`
	Trigger         TriggerSource  `json:"trigger"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	CancelRequested bool           `json:"cancel_requested,omitempty"`
	Final           bool           `json:"final,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	Result          *SyncResult    `json:"result,omitempty"`
	Payload         []VendorRecord `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	NextRunAt       *time.Time     `json:"next_run_at,omitempty"`
}

// NewSyncJob creates a pending job
func NewSyncJob(vendorID string, syncType SyncType, priority, maxRetries int, trigger TriggerSource) (*SyncJob, error) {
	if vendorID == "" {
		return nil, NewValidationError("vendor_id", "is required")
	}
	if !syncType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncType, syncType)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &SyncJob{
		ID:         uuid.New(),
		VendorID:   vendorID,
		SyncType:   syncType,
		Priority:   priority,
		Status:     JobStatusPending,
		Trigger:    trigger,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}, nil
}

// Clone returns a copy safe to hand out of a queue
func (j *SyncJob) Clone() *SyncJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.NextRunAt != nil {
		t := *j.NextRunAt
		c.NextRunAt = &t
	}
	if j.Payload != nil {
		c.Payload = make([]VendorRecord, len(j.Payload))
		for i, r := range j.Payload {
			c.Payload[i] = r.Clone()
		}
	}
	if j.Result != nil {
		res := &SyncResult{Reports: make(map[SyncType]*BatchReport, len(j.Result.Reports))}
		for k, v := range j.Result.Reports {
			rep := *v
			rep.Errors = append([]RecordError(nil), v.Errors...)
			res.Reports[k] = &rep
		}
		res.Skipped = append([]SyncType(nil), j.Result.Skipped...)
		c.Result = res
	}
	return &c
}

// QueueName is the queue the job lives on: its domain, or the umbrella
// queue for composite jobs.
func (j *SyncJob) QueueName() SyncType {
	return j.SyncType
}

// IsTerminal reports whether the job will never run again on its own
func (j *SyncJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled:
		return true
	case JobStatusFailed:
		return !j.CanRetry()
	}
	return false
}

// IsReady reports whether a pending job may be dequeued at now
func (j *SyncJob) IsReady(now time.Time) bool {
	return j.Status == JobStatusPending && (j.NextRunAt == nil || !j.NextRunAt.After(now))
}

// Start transitions pending -> running
func (j *SyncJob) Start() error {
	if j.Status != JobStatusPending {
		return j.transitionError(JobStatusRunning)
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.NextRunAt = nil
	return nil
}

// Complete transitions running -> completed
func (j *SyncJob) Complete(result *SyncResult) error {
	if j.Status != JobStatusRunning {
		return j.transitionError(JobStatusCompleted)
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.Result = result
	j.LastError = ""
	return nil
}

// Fail transitions running -> failed, preserving the error for inspection
func (j *SyncJob) Fail(err error, result *SyncResult) error {
	if j.Status != JobStatusRunning {
		return j.transitionError(JobStatusFailed)
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	if err != nil {
		j.LastError = err.Error()
	}
	if result != nil {
		j.Result = result
	}
	return nil
}

// CanRetry reports whether the retry budget allows another attempt. Final
// jobs failed with an error the retry policy rejected.
func (j *SyncJob) CanRetry() bool {
	return !j.CancelRequested && !j.Final && j.RetryCount < j.MaxRetries
}

// ScheduleRetry transitions failed -> pending, delayed until readyAt.
// It is the only path out of the failed state.
func (j *SyncJob) ScheduleRetry(readyAt time.Time) error {
	if j.Status != JobStatusFailed {
		return j.transitionError(JobStatusPending)
	}
	if !j.CanRetry() {
		return fmt.Errorf("%w: retry budget exhausted (%d/%d)", ErrInvalidTransition, j.RetryCount, j.MaxRetries)
	}
	j.RetryCount++
	j.Status = JobStatusPending
	j.Trigger = TriggerRetry
	j.NextRunAt = &readyAt
	j.StartedAt = nil
	j.CompletedAt = nil
	return nil
}

// Cancel removes a pending job from consideration, or flags a running job so
// no retry follows it. Terminal jobs cannot be cancelled.
func (j *SyncJob) Cancel() error {
	switch j.Status {
	case JobStatusPending:
		now := time.Now()
		j.Status = JobStatusCancelled
		j.CancelRequested = true
		j.CompletedAt = &now
		j.NextRunAt = nil
		return nil
	case JobStatusRunning:
		j.CancelRequested = true
		return nil
	}
	return j.transitionError(JobStatusCancelled)
}

// Reopen is the operator path for re-running a terminally failed job. The
// retry budget starts over.
func (j *SyncJob) Reopen() error {
	if j.Status != JobStatusFailed || j.CanRetry() {
		return j.transitionError(JobStatusPending)
	}
	j.Status = JobStatusPending
	j.Trigger = TriggerManual
	j.RetryCount = 0
	j.CancelRequested = false
	j.Final = false
	j.StartedAt = nil
	j.CompletedAt = nil
	j.NextRunAt = nil
	return nil
}

// Duration returns the job's last execution duration
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt == nil {
		return time.Since(*j.StartedAt)
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

func (j *SyncJob) transitionError(to JobStatus) error {
	return fmt.Errorf("%w: job %s is %s, cannot become %s", ErrInvalidTransition, j.ID, j.Status, to)
}
