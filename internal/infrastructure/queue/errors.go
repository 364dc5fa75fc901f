package queue

import "errors"

var (
	// ErrDuplicateJob is returned when a job id is enqueued twice
	ErrDuplicateJob = errors.New("queue: job already enqueued")
	// ErrJobNotPending is returned when enqueuing a job in any other status
	ErrJobNotPending = errors.New("queue: only pending jobs can be enqueued")
	// ErrUnknownQueue is returned for a sync type without a queue
	ErrUnknownQueue = errors.New("queue: unknown queue")
	// ErrQueueFull is returned when the in-memory queue reached its capacity
	ErrQueueFull = errors.New("queue: queue is full")
)
