package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when an operation needs a started scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidSchedule is returned for schedule strings that cannot be parsed
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
