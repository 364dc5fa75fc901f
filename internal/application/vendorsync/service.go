// Package vendorsync is the sync orchestrator: it turns triggers, schedule
// ticks and webhook deliveries into queued jobs, executes them through the
// vendor adapters and domain handlers, and drives retries.
package vendorsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults used when no option overrides them
const (
	DefaultPollInterval   = time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultBatchSize      = 50
)

// Option configures a SyncService
type Option func(*SyncService)

// WithRetryPolicy sets the retry policy
func WithRetryPolicy(p vendorsync.RetryPolicy) Option {
	return func(s *SyncService) {
		s.retry = p
	}
}

// WithMaxRetries sets the retry budget given to new jobs of vendors that do
// not set their own
func WithMaxRetries(n int) Option {
	return func(s *SyncService) {
		s.maxRetries = n
	}
}

// WithReviewRepository sets where manual-review envelopes are stored
func WithReviewRepository(repo vendorsync.ConflictReviewRepository) Option {
	return func(s *SyncService) {
		s.reviews = repo
	}
}

// WithJobHistory archives terminal jobs to repo
func WithJobHistory(repo vendorsync.JobHistoryRepository) Option {
	return func(s *SyncService) {
		s.history = repo
	}
}

// WithIdempotencyStore deduplicates webhook deliveries for ttl
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) Option {
	return func(s *SyncService) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithMetrics records job, record, conflict and retry metrics
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *SyncService) {
		s.metrics = m
	}
}

// WithPollInterval sets how often idle dispatchers look for delayed jobs
func WithPollInterval(d time.Duration) Option {
	return func(s *SyncService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithBatchSize caps the jobs a dispatcher runs before yielding; 0 means no cap
func WithBatchSize(n int) Option {
	return func(s *SyncService) {
		if n >= 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the clock used for retry scheduling
func WithClock(now func() time.Time) Option {
	return func(s *SyncService) {
		s.now = now
	}
}

// WithHandler registers or replaces the handler for its domain
func WithHandler(h DomainHandler) Option {
	return func(s *SyncService) {
		s.handlers[h.Domain()] = h
	}
}

// SyncService orchestrates vendor sync jobs
type SyncService struct {
	queue    vendorsync.JobQueue
	vendors  vendorsync.VendorRepository
	adapters vendorsync.AdapterFactory
	records  vendorsync.RecordStore
	resolver *vendorsync.ConflictResolver
	eventBus shared.EventPublisher
	reviews  vendorsync.ConflictReviewRepository
	history  vendorsync.JobHistoryRepository
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger

	handlers       map[vendorsync.SyncType]DomainHandler
	retry          vendorsync.RetryPolicy
	maxRetries     int
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	pollInterval   time.Duration
	batchSize      int
	now            func() time.Time

	mu      sync.Mutex
	wake    map[vendorsync.SyncType]chan struct{}
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// NewSyncService creates a SyncService. Domain handlers for inventory,
// pricing, order and catalog are registered unless WithHandler replaces them.
func NewSyncService(
	queue vendorsync.JobQueue,
	vendors vendorsync.VendorRepository,
	adapters vendorsync.AdapterFactory,
	records vendorsync.RecordStore,
	resolver *vendorsync.ConflictResolver,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncService{
		queue:          queue,
		vendors:        vendors,
		adapters:       adapters,
		records:        records,
		resolver:       resolver,
		eventBus:       eventBus,
		logger:         logger.Named("sync_service"),
		handlers:       make(map[vendorsync.SyncType]DomainHandler),
		retry:          vendorsync.DefaultRetryPolicy(),
		maxRetries:     vendorsync.DefaultMaxRetries,
		idempotencyTTL: DefaultIdempotencyTTL,
		pollInterval:   DefaultPollInterval,
		batchSize:      DefaultBatchSize,
		now:            time.Now,
		wake:           make(map[vendorsync.SyncType]chan struct{}),
	}
	for _, q := range vendorsync.AllQueues() {
		s.wake[q] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, domain := range vendorsync.SyncTypeAll.SubTypes() {
		if _, ok := s.handlers[domain]; ok {
			continue
		}
		s.handlers[domain] = NewRecordHandler(domain, records, resolver, logger,
			WithReviews(s.reviews),
			WithPublisher(eventBus),
			WithHandlerMetrics(s.metrics),
		)
	}
	return s
}

// TriggerSync enqueues a job and returns it without waiting for execution.
// Forced jobs run ahead of normal ones.
func (s *SyncService) TriggerSync(ctx context.Context, vendorID string, syncType vendorsync.SyncType, force bool) (*vendorsync.SyncJob, error) {
	vendor, err := s.activeVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	job, err := vendorsync.NewSyncJob(vendor.ID, syncType, vendorsync.PriorityFor(force), s.retriesFor(vendor), vendorsync.TriggerManual)
	if err != nil {
		return nil, err
	}
	if trigger, ok := triggerFromContext(ctx); ok {
		job.Trigger = trigger
	}
	return s.enqueue(ctx, job)
}

// CancelJob cancels a pending job, or flags a running one so no retry
// follows it.
func (s *SyncService) CancelJob(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	job, err := s.queue.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sync job cancelled",
		zap.String("job_id", id.String()),
		zap.String("status", job.Status.String()),
	)
	if job.Status == vendorsync.JobStatusCancelled {
		s.archive(ctx, job)
	}
	return job, nil
}

// RetryJob re-enqueues a job whose retries are exhausted. The retry budget
// starts over.
func (s *SyncService) RetryJob(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	job, err := s.queue.Reopen(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sync job reopened",
		zap.String("job_id", id.String()),
		zap.String("vendor_id", job.VendorID),
	)
	s.signal(job.QueueName())
	return job, nil
}

// GetJob returns a job by id
func (s *SyncService) GetJob(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return s.queue.GetJob(ctx, id)
}

// ListJobs returns jobs matching filter, newest first
func (s *SyncService) ListJobs(ctx context.Context, filter vendorsync.JobFilter) ([]*vendorsync.SyncJob, error) {
	return s.queue.ListJobs(ctx, filter)
}

// PushOrder sends an internal order to a vendor
func (s *SyncService) PushOrder(ctx context.Context, vendorID string, order vendorsync.VendorRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "vendorsync.push_order",
		attribute.String("vendor.id", vendorID),
		attribute.String("order.key", order.BusinessKey),
	)
	defer span.End()

	if order.BusinessKey == "" {
		err := vendorsync.NewValidationError("business_key", "is required")
		telemetry.RecordError(span, err)
		return err
	}
	vendor, err := s.activeVendor(ctx, vendorID)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	adapter, err := s.adapters.ForVendor(ctx, vendor)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if !adapter.Capabilities().Has(vendorsync.CapabilitySendOrder) {
		err := vendorsync.NewCapabilityUnsupportedError(adapter.Kind(), vendorsync.CapabilitySendOrder)
		telemetry.RecordError(span, err)
		return err
	}
	if err := adapter.Connect(ctx); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer s.disconnect(adapter, vendorID)

	if order.VendorID == "" {
		order.VendorID = vendorID
	}
	order.Domain = vendorsync.SyncTypeOrder
	if err := adapter.SendOrder(ctx, order); err != nil {
		s.logger.Error("Failed to push order",
			zap.String("vendor_id", vendorID),
			zap.String("business_key", order.BusinessKey),
			zap.Error(err),
		)
		telemetry.RecordError(span, err)
		return err
	}
	s.logger.Info("Order pushed to vendor",
		zap.String("vendor_id", vendorID),
		zap.String("business_key", order.BusinessKey),
	)
	telemetry.SetOK(span)
	return nil
}

func (s *SyncService) enqueue(ctx context.Context, job *vendorsync.SyncJob) (*vendorsync.SyncJob, error) {
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("Failed to enqueue sync job",
			zap.String("vendor_id", job.VendorID),
			zap.String("sync_type", job.SyncType.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("enqueue sync job: %w", err)
	}
	s.logger.Info("Sync job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("vendor_id", job.VendorID),
		zap.String("sync_type", job.SyncType.String()),
		zap.Int("priority", job.Priority),
		zap.String("trigger", string(job.Trigger)),
	)
	s.signal(job.QueueName())
	return job.Clone(), nil
}

// retriesFor returns the vendor's retry budget, falling back to the engine's
func (s *SyncService) retriesFor(vendor *vendorsync.Vendor) int {
	if vendor.AdapterConfig.RetryAttempts > 0 {
		return vendor.AdapterConfig.RetryAttempts
	}
	return s.maxRetries
}

func (s *SyncService) activeVendor(ctx context.Context, vendorID string) (*vendorsync.Vendor, error) {
	if vendorID == "" {
		return nil, vendorsync.NewValidationError("vendor_id", "is required")
	}
	vendor, err := s.vendors.FindByID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) && !errors.Is(err, vendorsync.ErrVendorNotFound) {
			return nil, fmt.Errorf("%w: %s", vendorsync.ErrVendorNotFound, vendorID)
		}
		return nil, err
	}
	if !vendor.Active {
		return nil, fmt.Errorf("%w: %s", vendorsync.ErrVendorInactive, vendorID)
	}
	return vendor, nil
}

func (s *SyncService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish sync event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Error(err),
		)
	}
}

func (s *SyncService) archive(ctx context.Context, job *vendorsync.SyncJob) {
	if s.history == nil {
		return
	}
	if err := s.history.Archive(ctx, job); err != nil {
		s.logger.Warn("Failed to archive sync job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *SyncService) disconnect(adapter vendorsync.VendorAdapter, vendorID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adapter.Disconnect(ctx); err != nil {
		s.logger.Warn("Failed to disconnect vendor adapter",
			zap.String("vendor_id", vendorID),
			zap.Error(err),
		)
	}
}

type triggerKey struct{}

// WithTrigger marks jobs created through ctx with a trigger source other than
// manual. The scheduler uses it for periodic ticks.
func WithTrigger(ctx context.Context, trigger vendorsync.TriggerSource) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// ScheduledTrigger enqueues jobs tagged as scheduled. It satisfies the
// scheduler's trigger interface.
type ScheduledTrigger struct {
	svc *SyncService
}

// Scheduled returns the trigger periodic ticks should use
func (s *SyncService) Scheduled() ScheduledTrigger {
	return ScheduledTrigger{svc: s}
}

// TriggerSync enqueues a scheduled sync
func (t ScheduledTrigger) TriggerSync(ctx context.Context, vendorID string, syncType vendorsync.SyncType, force bool) (*vendorsync.SyncJob, error) {
	return t.svc.TriggerSync(WithTrigger(ctx, vendorsync.TriggerScheduled), vendorID, syncType, force)
}

func triggerFromContext(ctx context.Context) (vendorsync.TriggerSource, bool) {
	t, ok := ctx.Value(triggerKey{}).(vendorsync.TriggerSource)
	return t, ok
}
