package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodicTrigger computes fire times. Next must return a time strictly
// after its argument.
type PeriodicTrigger interface {
	Next(after time.Time) time.Time
	String() string
}

// IntervalTrigger fires every Period
type IntervalTrigger struct {
	Period time.Duration
}

// NewIntervalTrigger creates a fixed-period trigger
func NewIntervalTrigger(period time.Duration) (*IntervalTrigger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSchedule, period)
	}
	return &IntervalTrigger{Period: period}, nil
}

// Next returns after + Period
func (t *IntervalTrigger) Next(after time.Time) time.Time {
	return after.Add(t.Period)
}

func (t *IntervalTrigger) String() string {
	return "every " + t.Period.String()
}

// everyPrefix introduces an interval schedule such as "@every 15m"
const everyPrefix = "@every "

// ParseTrigger parses either an interval schedule ("@every 15m") or a
// calendar spec.
func ParseTrigger(spec string, loc *time.Location) (PeriodicTrigger, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, everyPrefix); ok {
		period, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
		}
		trig, err := NewIntervalTrigger(period)
		if err != nil {
			return nil, err
		}
		return trig, nil
	}
	trig, err := ParseCalendarTrigger(spec, loc)
	if err != nil {
		return nil, err
	}
	return trig, nil
}

// wildcard marks an unrestricted calendar field
const wildcard = -1

// CalendarTrigger fires on a "minute hour * * weekday" calendar spec.
// Minute and hour take a number or "*", weekday takes 0-6 (Sunday = 0) or
// "*". Day-of-month and month must be "*".
type CalendarTrigger struct {
	spec     string
	minute   int
	hour     int
	weekday  int
	location *time.Location
}

// ParseCalendarTrigger parses spec, evaluated in loc (UTC when nil)
func ParseCalendarTrigger(spec string, loc *time.Location) (*CalendarTrigger, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q must have 5 fields", ErrInvalidSchedule, spec)
	}
	if fields[2] != "*" || fields[3] != "*" {
		return nil, fmt.Errorf("%w: %q: day-of-month and month must be *", ErrInvalidSchedule, spec)
	}
	if loc == nil {
		loc = time.UTC
	}

	t := &CalendarTrigger{spec: spec, location: loc}
	var err error
	if t.minute, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("%w: %q minute: %v", ErrInvalidSchedule, spec, err)
	}
	if t.hour, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("%w: %q hour: %v", ErrInvalidSchedule, spec, err)
	}
	if t.weekday, err = parseField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("%w: %q weekday: %v", ErrInvalidSchedule, spec, err)
	}
	return t, nil
}

func parseField(s string, lo, hi int) (int, error) {
	if s == "*" {
		return wildcard, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d,%d]", n, lo, hi)
	}
	return n, nil
}

// Next returns the first matching minute strictly after after
func (t *CalendarTrigger) Next(after time.Time) time.Time {
	next := after.In(t.location).Truncate(time.Minute).Add(time.Minute)
	for {
		if t.weekday != wildcard && int(next.Weekday()) != t.weekday {
			y, m, d := next.Date()
			next = time.Date(y, m, d+1, 0, 0, 0, 0, t.location)
			continue
		}
		if t.hour != wildcard && next.Hour() != t.hour {
			y, m, d := next.Date()
			if next.Hour() > t.hour {
				next = time.Date(y, m, d+1, 0, 0, 0, 0, t.location)
			} else {
				next = time.Date(y, m, d, t.hour, 0, 0, 0, t.location)
			}
			continue
		}
		if t.minute != wildcard && next.Minute() != t.minute {
			if next.Minute() > t.minute {
				y, m, d := next.Date()
				next = time.Date(y, m, d, next.Hour()+1, 0, 0, 0, t.location)
			} else {
				next = next.Add(time.Duration(t.minute-next.Minute()) * time.Minute)
			}
			continue
		}
		return next
	}
}

func (t *CalendarTrigger) String() string {
	return t.spec
}
