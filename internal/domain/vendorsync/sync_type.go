package vendorsync

// SyncType is the data domain a job synchronizes
type SyncType string

const (
	SyncTypeInventory SyncType = "inventory"
	SyncTypePricing   SyncType = "pricing"
	SyncTypeOrder     SyncType = "order"
	SyncTypeCatalog   SyncType = "catalog"
	SyncTypeAll       SyncType = "all"
)

// IsValid checks if the sync type is valid
func (t SyncType) IsValid() bool {
	switch t {
	case SyncTypeInventory, SyncTypePricing, SyncTypeOrder, SyncTypeCatalog, SyncTypeAll:
		return true
	}
	return false
}

// String returns the string representation
func (t SyncType) String() string {
	return string(t)
}

// IsComposite reports whether the type fans out to every sub-domain
func (t SyncType) IsComposite() bool {
	return t == SyncTypeAll
}

// SubTypes returns the domains an "all" job runs, in execution order.
// Any other type returns itself.
func (t SyncType) SubTypes() []SyncType {
	if t.IsComposite() {
		return []SyncType{SyncTypeInventory, SyncTypePricing, SyncTypeOrder, SyncTypeCatalog}
	}
	return []SyncType{t}
}

// AllQueues returns every queue the engine maintains: one per domain plus the
// umbrella queue for composite jobs.
func AllQueues() []SyncType {
	return []SyncType{SyncTypeInventory, SyncTypePricing, SyncTypeOrder, SyncTypeCatalog, SyncTypeAll}
}

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValid checks if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s JobStatus) String() string {
	return string(s)
}

// TriggerSource records what created a job
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
	TriggerEvent     TriggerSource = "event"
	TriggerRetry     TriggerSource = "retry"
)

// Job priorities
const (
	PriorityNormal = 5
	PriorityForced = 10
)

// PriorityFor returns the priority of a triggered job
func PriorityFor(force bool) int {
	if force {
		return PriorityForced
	}
	return PriorityNormal
}
