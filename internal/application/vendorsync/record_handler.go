package vendorsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DomainHandler applies one domain's vendor records to the internal store.
// Per-record failures go to the report; an error return fails the job.
type DomainHandler interface {
	Domain() vendorsync.SyncType
	Handle(ctx context.Context, job *vendorsync.SyncJob, vendor *vendorsync.Vendor, records []vendorsync.VendorRecord) (*vendorsync.BatchReport, error)
}

// RecordHandlerOption configures a RecordHandler
type RecordHandlerOption func(*RecordHandler)

// WithReviews stores manual-review envelopes in repo
func WithReviews(repo vendorsync.ConflictReviewRepository) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.reviews = repo
	}
}

// WithPublisher publishes conflict.flagged events
func WithPublisher(p shared.EventPublisher) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.publisher = p
	}
}

// WithHandlerMetrics records conflict metrics
func WithHandlerMetrics(m *telemetry.SyncMetrics) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.metrics = m
	}
}

// WithRules replaces the domain's default rules
func WithRules(rules ...RecordRule) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.rules = rules
	}
}

// RecordHandler is the shared validate, filter, resolve and persist pipeline
// behind the inventory, pricing, order and catalog handlers.
type RecordHandler struct {
	domain    vendorsync.SyncType
	records   vendorsync.RecordStore
	resolver  *vendorsync.ConflictResolver
	reviews   vendorsync.ConflictReviewRepository
	publisher shared.EventPublisher
	metrics   *telemetry.SyncMetrics
	rules     []RecordRule
	validator *recordValidator
	logger    *zap.Logger
}

// NewRecordHandler creates the handler for a domain
func NewRecordHandler(
	domain vendorsync.SyncType,
	records vendorsync.RecordStore,
	resolver *vendorsync.ConflictResolver,
	log *zap.Logger,
	opts ...RecordHandlerOption,
) *RecordHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &RecordHandler{
		domain:   domain,
		records:  records,
		resolver: resolver,
		rules:    DefaultRules(domain),
		logger:   log.Named(string(domain) + "_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.validator = newRecordValidator(h.rules)
	return h
}

// Domain implements DomainHandler
func (h *RecordHandler) Domain() vendorsync.SyncType {
	return h.domain
}

// Handle implements DomainHandler
func (h *RecordHandler) Handle(ctx context.Context, job *vendorsync.SyncJob, vendor *vendorsync.Vendor, records []vendorsync.VendorRecord) (*vendorsync.BatchReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "vendorsync.handle_"+string(h.domain),
		attribute.String("vendor.id", vendor.ID),
		attribute.Int("records", len(records)),
	)
	defer span.End()

	log := logger.L(ctx, h.logger)
	filter := vendor.AdapterConfig.RecordFilter
	report := vendorsync.NewBatchReport(h.domain)

	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return report, err
		}
		rec := h.normalize(raw, vendor.ID)

		if err := h.validator.Check(rec); err != nil {
			report.RecordFailure(i, rec.BusinessKey, err)
			log.Debug("Vendor record rejected",
				zap.Int("index", i),
				zap.String("business_key", rec.BusinessKey),
				zap.Error(err),
			)
			continue
		}
		if !filter.Evaluate(rec.Fields()) {
			report.RecordFiltered()
			continue
		}

		flagged, err := h.apply(ctx, job.ID, rec)
		if err != nil {
			report.RecordFailure(i, rec.BusinessKey, err)
			log.Warn("Failed to apply vendor record",
				zap.Int("index", i),
				zap.String("business_key", rec.BusinessKey),
				zap.Error(err),
			)
			continue
		}
		report.RecordSuccess(flagged)
	}

	span.SetAttributes(
		attribute.Int("records.succeeded", report.Succeeded),
		attribute.Int("records.failed", report.Failed),
		attribute.Int("records.flagged", report.Flagged),
	)
	telemetry.SetOK(span)
	log.Info("Domain batch processed",
		zap.String("domain", string(h.domain)),
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("flagged", report.Flagged),
		zap.Int("filtered", report.Filtered),
	)
	return report, nil
}

func (h *RecordHandler) normalize(raw vendorsync.VendorRecord, vendorID string) vendorsync.VendorRecord {
	rec := raw.Clone()
	if rec.VendorID == "" {
		rec.VendorID = vendorID
	}
	rec.Domain = h.domain
	if rec.Source == "" {
		rec.Source = vendorsync.SourceVendor
	}
	return rec
}

// apply reconciles rec with its internal counterpart and persists the
// outcome. flagged is true when the record was parked for review instead.
func (h *RecordHandler) apply(ctx context.Context, jobID uuid.UUID, rec vendorsync.VendorRecord) (bool, error) {
	internal, err := h.records.Find(ctx, h.domain, rec.VendorID, rec.BusinessKey)
	if errors.Is(err, shared.ErrNotFound) {
		if _, err := h.records.Save(ctx, rec); err != nil {
			return false, fmt.Errorf("save record: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load internal record: %w", err)
	}

	conflicts := h.resolver.DetectConflicts(rec, *internal)
	if len(conflicts) == 0 {
		if _, err := h.records.Save(ctx, rec); err != nil {
			return false, fmt.Errorf("save record: %w", err)
		}
		return false, nil
	}

	conflictType := vendorsync.ClassifyConflicts(conflicts)
	resolution, err := h.resolver.Resolve(rec, *internal, conflictType)
	if err != nil {
		return false, err
	}
	h.metrics.RecordConflict(ctx, resolution.Strategy, conflictType)

	if resolution.RequiresReview() {
		return true, h.flag(ctx, jobID, *resolution.Envelope)
	}
	if _, err := h.records.Save(ctx, resolution.Record); err != nil {
		return false, fmt.Errorf("save resolved record: %w", err)
	}
	return false, nil
}

func (h *RecordHandler) flag(ctx context.Context, jobID uuid.UUID, envelope vendorsync.ConflictEnvelope) error {
	if h.reviews != nil {
		review := &vendorsync.ConflictReview{
			ID:        uuid.New(),
			JobID:     jobID,
			Envelope:  envelope,
			Status:    vendorsync.ReviewStatusOpen,
			CreatedAt: envelope.FlaggedAt,
		}
		if err := h.reviews.Save(ctx, review); err != nil {
			return fmt.Errorf("save conflict review: %w", err)
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, vendorsync.NewConflictFlaggedEvent(jobID, envelope)); err != nil {
			h.logger.Warn("Failed to publish conflict.flagged",
				zap.String("business_key", envelope.VendorValue.BusinessKey),
				zap.Error(err),
			)
		}
	}
	logger.L(ctx, h.logger).Info("Conflict flagged for review",
		zap.String("business_key", envelope.VendorValue.BusinessKey),
		zap.String("conflict_type", string(envelope.Type)),
		zap.Int("fields", len(envelope.Conflicts)),
	)
	return nil
}

var _ DomainHandler = (*RecordHandler)(nil)
