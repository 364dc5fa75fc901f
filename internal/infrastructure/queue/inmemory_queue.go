package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
)

// entry is one job waiting in a domain queue
type entry struct {
	id       uuid.UUID
	priority int
	seq      uint64
	index    int
}

// priorityHeap orders by priority desc, then seq asc
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// InMemoryJobQueue is a process-local JobQueue. All state sits behind one
// mutex, which serializes every transition.
type InMemoryJobQueue struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*vendorsync.SyncJob
	ready    map[vendorsync.SyncType]*priorityHeap
	delayed  map[uuid.UUID]*entry
	queued   map[uuid.UUID]*entry
	seq      uint64
	capacity int
	now      func() time.Time
}

// InMemoryOption configures an InMemoryJobQueue
type InMemoryOption func(*InMemoryJobQueue)

// WithCapacity bounds the number of jobs waiting across all queues
func WithCapacity(n int) InMemoryOption {
	return func(q *InMemoryJobQueue) {
		q.capacity = n
	}
}

// WithClock overrides the clock used to decide readiness
func WithClock(now func() time.Time) InMemoryOption {
	return func(q *InMemoryJobQueue) {
		q.now = now
	}
}

// NewInMemoryJobQueue creates an empty queue set
func NewInMemoryJobQueue(opts ...InMemoryOption) *InMemoryJobQueue {
	q := &InMemoryJobQueue{
		jobs:    make(map[uuid.UUID]*vendorsync.SyncJob),
		ready:   make(map[vendorsync.SyncType]*priorityHeap),
		delayed: make(map[uuid.UUID]*entry),
		queued:  make(map[uuid.UUID]*entry),
		now:     time.Now,
	}
	for _, name := range vendorsync.AllQueues() {
		h := &priorityHeap{}
		heap.Init(h)
		q.ready[name] = h
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue implements vendorsync.JobQueue
func (q *InMemoryJobQueue) Enqueue(ctx context.Context, job *vendorsync.SyncJob) (uuid.UUID, error) {
	if job.Status != vendorsync.JobStatusPending {
		return uuid.Nil, ErrJobNotPending
	}
	if _, ok := q.ready[job.QueueName()]; !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownQueue, job.QueueName())
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := q.jobs[job.ID]; exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if q.capacity > 0 && len(q.queued)+len(q.delayed) >= q.capacity {
		return uuid.Nil, ErrQueueFull
	}

	stored := job.Clone()
	q.jobs[stored.ID] = stored
	q.schedule(stored)
	return stored.ID, nil
}

// DequeueNext implements vendorsync.JobQueue. The returned job is removed
// from the waiting set but stays pending until MarkRunning.
func (q *InMemoryJobQueue) DequeueNext(ctx context.Context, name vendorsync.SyncType) (*vendorsync.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.ready[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	q.promoteDue(q.now())

	for h.Len() > 0 {
		e := heap.Pop(h).(*entry)
		delete(q.queued, e.id)
		job, ok := q.jobs[e.id]
		if !ok || job.Status != vendorsync.JobStatusPending {
			continue
		}
		return job.Clone(), nil
	}
	return nil, nil
}

// MarkRunning implements vendorsync.JobQueue
func (q *InMemoryJobQueue) MarkRunning(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.mutate(id, func(job *vendorsync.SyncJob) error {
		if err := job.Start(); err != nil {
			return err
		}
		q.unschedule(job.ID, job.QueueName())
		return nil
	})
}

// Ack implements vendorsync.JobQueue
func (q *InMemoryJobQueue) Ack(ctx context.Context, id uuid.UUID, outcome vendorsync.JobOutcome) (*vendorsync.SyncJob, error) {
	return q.mutate(id, func(job *vendorsync.SyncJob) error {
		return applyOutcome(job, outcome)
	})
}

// Requeue implements vendorsync.JobQueue
func (q *InMemoryJobQueue) Requeue(ctx context.Context, id uuid.UUID, readyAt time.Time) (*vendorsync.SyncJob, error) {
	return q.mutate(id, func(job *vendorsync.SyncJob) error {
		if err := job.ScheduleRetry(readyAt); err != nil {
			return err
		}
		q.schedule(job)
		return nil
	})
}

// Reopen implements vendorsync.JobQueue
func (q *InMemoryJobQueue) Reopen(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.mutate(id, func(job *vendorsync.SyncJob) error {
		if err := job.Reopen(); err != nil {
			return err
		}
		q.schedule(job)
		return nil
	})
}

// Cancel implements vendorsync.JobQueue
func (q *InMemoryJobQueue) Cancel(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.mutate(id, func(job *vendorsync.SyncJob) error {
		wasPending := job.Status == vendorsync.JobStatusPending
		if err := job.Cancel(); err != nil {
			return err
		}
		if wasPending {
			q.unschedule(job.ID, job.QueueName())
		}
		return nil
	})
}

// GetJob implements vendorsync.JobQueue
func (q *InMemoryJobQueue) GetJob(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vendorsync.ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// ListJobs implements vendorsync.JobQueue. Results are newest first.
func (q *InMemoryJobQueue) ListJobs(ctx context.Context, filter vendorsync.JobFilter) ([]*vendorsync.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*vendorsync.SyncJob, 0)
	for _, job := range q.jobs {
		if filter.Matches(job) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of jobs waiting (ready or delayed) in a queue
func (q *InMemoryJobQueue) Len(name vendorsync.SyncType) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	if h, ok := q.ready[name]; ok {
		n = h.Len()
	}
	for id := range q.delayed {
		if job, ok := q.jobs[id]; ok && job.QueueName() == name {
			n++
		}
	}
	return n
}

func (q *InMemoryJobQueue) mutate(id uuid.UUID, fn func(job *vendorsync.SyncJob) error) (*vendorsync.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vendorsync.ErrJobNotFound, id)
	}
	working := job.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	q.jobs[id] = working
	return working.Clone(), nil
}

// schedule places a pending job in its ready heap, or the delayed set when
// its NextRunAt is in the future. Caller holds mu.
func (q *InMemoryJobQueue) schedule(job *vendorsync.SyncJob) {
	q.seq++
	e := &entry{id: job.ID, priority: job.Priority, seq: q.seq}
	if job.NextRunAt != nil && job.NextRunAt.After(q.now()) {
		q.delayed[job.ID] = e
		return
	}
	heap.Push(q.ready[job.QueueName()], e)
	q.queued[job.ID] = e
}

// unschedule drops a job from the waiting sets. Caller holds mu.
func (q *InMemoryJobQueue) unschedule(id uuid.UUID, name vendorsync.SyncType) {
	delete(q.delayed, id)
	if e, ok := q.queued[id]; ok {
		if e.index >= 0 {
			heap.Remove(q.ready[name], e.index)
		}
		delete(q.queued, id)
	}
}

// promoteDue moves delayed jobs whose time has come into their ready heap,
// keeping their original sequence so FIFO order among equals holds.
// Caller holds mu.
func (q *InMemoryJobQueue) promoteDue(now time.Time) {
	for id, e := range q.delayed {
		job, ok := q.jobs[id]
		if !ok || job.Status != vendorsync.JobStatusPending {
			delete(q.delayed, id)
			continue
		}
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			delete(q.delayed, id)
			heap.Push(q.ready[job.QueueName()], e)
			q.queued[id] = e
		}
	}
}

func applyOutcome(job *vendorsync.SyncJob, outcome vendorsync.JobOutcome) error {
	switch outcome.Status {
	case vendorsync.JobStatusCompleted:
		return job.Complete(outcome.Result)
	case vendorsync.JobStatusFailed:
		if err := job.Fail(outcome.Err, outcome.Result); err != nil {
			return err
		}
		job.Final = outcome.Final
		return nil
	}
	return fmt.Errorf("%w: cannot ack with status %q", vendorsync.ErrInvalidTransition, outcome.Status)
}

var _ vendorsync.JobQueue = (*InMemoryJobQueue)(nil)
