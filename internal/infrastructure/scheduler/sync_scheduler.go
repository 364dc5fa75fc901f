// Package scheduler fires periodic vendor syncs on hourly, daily and weekly
// cadences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultHistoryLimit is the number of ticks kept in memory
const DefaultHistoryLimit = 100

// SyncTrigger enqueues sync jobs
type SyncTrigger interface {
	TriggerSync(ctx context.Context, vendorID string, syncType vendorsync.SyncType, force bool) (*vendorsync.SyncJob, error)
}

// VendorLister lists the vendors eligible for periodic syncs
type VendorLister interface {
	ListActive(ctx context.Context) ([]*vendorsync.Vendor, error)
}

// CadenceSchedule binds a cadence to the trigger that paces it
type CadenceSchedule struct {
	Cadence vendorsync.Cadence
	Trigger PeriodicTrigger
}

// SchedulesFromConfig builds a trigger for every enabled cadence. A schedule
// is a calendar spec or "@every <duration>".
func SchedulesFromConfig(cfg *config.ScheduleConfig, loc *time.Location) ([]CadenceSchedule, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	var out []CadenceSchedule
	for _, c := range []struct {
		cadence vendorsync.Cadence
		cfg     config.CadenceConfig
	}{
		{vendorsync.CadenceHourly, cfg.Hourly},
		{vendorsync.CadenceDaily, cfg.Daily},
		{vendorsync.CadenceWeekly, cfg.Weekly},
	} {
		if !c.cfg.Enabled {
			continue
		}
		trig, err := ParseTrigger(c.cfg.Schedule, loc)
		if err != nil {
			return nil, fmt.Errorf("%s schedule: %w", c.cadence, err)
		}
		out = append(out, CadenceSchedule{Cadence: c.cadence, Trigger: trig})
	}
	return out, nil
}

// VendorFailure is one vendor that could not be triggered on a tick
type VendorFailure struct {
	VendorID string `json:"vendor_id"`
	Error    string `json:"error"`
}

// TickRecord summarizes one scheduler tick
type TickRecord struct {
	Cadence     vendorsync.Cadence `json:"cadence"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Triggered   []string           `json:"triggered,omitempty"`
	Failures    []VendorFailure    `json:"failures,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// SyncSchedulerOption configures a SyncScheduler
type SyncSchedulerOption func(*SyncScheduler)

// WithSchedulerClock overrides time.Now
func WithSchedulerClock(now func() time.Time) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		s.now = now
	}
}

// WithHistoryLimit sets how many tick records are kept
func WithHistoryLimit(n int) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// SyncScheduler runs one independent loop per cadence. Each tick enumerates
// the active vendors on that cadence and triggers an "all" sync for each;
// one vendor failing never stops the others.
type SyncScheduler struct {
	trigger   SyncTrigger
	vendors   VendorLister
	schedules []CadenceSchedule
	logger    *zap.Logger
	now       func() time.Time

	historyLimit int
	histMu       sync.Mutex
	history      []TickRecord

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// NewSyncScheduler creates a scheduler; call Start to begin ticking
func NewSyncScheduler(trigger SyncTrigger, vendors VendorLister, schedules []CadenceSchedule, logger *zap.Logger, opts ...SyncSchedulerOption) *SyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncScheduler{
		trigger:      trigger,
		vendors:      vendors,
		schedules:    schedules,
		logger:       logger.Named("scheduler"),
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the cadence loops
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, sched := range s.schedules {
		g.Go(func() error {
			s.runLoop(gctx, sched)
			return nil
		})
		s.logger.Info("Cadence scheduled",
			zap.String("cadence", string(sched.Cadence)),
			zap.String("trigger", sched.Trigger.String()),
			zap.Time("next_run", sched.Trigger.Next(s.now())),
		)
	}

	s.cancel = cancel
	s.group = g
	s.isRunning = true
	s.logger.Info("Sync scheduler started", zap.Int("cadences", len(s.schedules)))
	return nil
}

// Stop cancels the loops and waits for an in-flight tick to finish
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loops are active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *SyncScheduler) runLoop(ctx context.Context, sched CadenceSchedule) {
	for {
		now := s.now()
		wait := sched.Trigger.Next(now).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx, sched.Cadence)
		}
	}
}

// Tick runs one enumeration for cadence and records it in the history
func (s *SyncScheduler) Tick(ctx context.Context, cadence vendorsync.Cadence) TickRecord {
	rec := TickRecord{Cadence: cadence, StartedAt: s.now()}
	defer func() {
		rec.CompletedAt = s.now()
		s.record(rec)
	}()

	vendors, err := s.vendors.ListActive(ctx)
	if err != nil {
		rec.Error = err.Error()
		s.logger.Error("Failed to list active vendors",
			zap.String("cadence", string(cadence)),
			zap.Error(err),
		)
		return rec
	}

	for _, v := range vendors {
		if !v.SyncsOn(cadence) {
			continue
		}
		if err := s.triggerVendor(ctx, v.ID); err != nil {
			rec.Failures = append(rec.Failures, VendorFailure{VendorID: v.ID, Error: err.Error()})
			s.logger.Error("Failed to trigger scheduled sync",
				zap.String("cadence", string(cadence)),
				zap.String("vendor_id", v.ID),
				zap.Error(err),
			)
			continue
		}
		rec.Triggered = append(rec.Triggered, v.ID)
	}

	s.logger.Info("Scheduled tick completed",
		zap.String("cadence", string(cadence)),
		zap.Int("triggered", len(rec.Triggered)),
		zap.Int("failed", len(rec.Failures)),
	)
	return rec
}

func (s *SyncScheduler) triggerVendor(ctx context.Context, vendorID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while triggering: %v", r)
		}
	}()
	_, err = s.trigger.TriggerSync(ctx, vendorID, vendorsync.SyncTypeAll, false)
	return err
}

// TriggerNow is the ad-hoc path: a forced sync that jumps the queue
func (s *SyncScheduler) TriggerNow(ctx context.Context, vendorID string, syncType vendorsync.SyncType) (*vendorsync.SyncJob, error) {
	if vendorID == "" {
		return nil, errors.New("vendor id is required")
	}
	return s.trigger.TriggerSync(ctx, vendorID, syncType, true)
}

func (s *SyncScheduler) record(rec TickRecord) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, rec)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns the recorded ticks, oldest first
func (s *SyncScheduler) History() []TickRecord {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return append([]TickRecord(nil), s.history...)
}
