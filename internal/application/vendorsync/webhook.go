package vendorsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookReceipt describes an accepted delivery. Job is nil when the
// delivery carried no records.
type WebhookReceipt struct {
	DeliveryID string
	SyncType   vendorsync.SyncType
	Records    int
	Job        *vendorsync.SyncJob
}

// IngestWebhook verifies and decodes a pushed payload through the vendor's
// adapter and enqueues an event-driven job carrying the records. A delivery
// seen before fails with vendorsync.ErrDuplicateDelivery.
func (s *SyncService) IngestWebhook(ctx context.Context, vendorID string, body []byte, signature string) (*WebhookReceipt, error) {
	ctx, span := telemetry.StartSpan(ctx, "vendorsync.ingest_webhook",
		attribute.String("vendor.id", vendorID),
		attribute.Int("body.size", len(body)),
	)
	defer span.End()

	receipt, err := s.ingest(ctx, vendorID, body, signature)
	switch {
	case errors.Is(err, vendorsync.ErrDuplicateDelivery):
		s.metrics.RecordWebhook(ctx, vendorID, telemetry.WebhookDuplicate)
		span.SetAttributes(attribute.Bool("webhook.duplicate", true))
	case err != nil:
		s.metrics.RecordWebhook(ctx, vendorID, telemetry.WebhookRejected)
		telemetry.RecordError(span, err)
	default:
		s.metrics.RecordWebhook(ctx, vendorID, telemetry.WebhookAccepted)
		telemetry.SetOK(span)
	}
	return receipt, err
}

func (s *SyncService) ingest(ctx context.Context, vendorID string, body []byte, signature string) (*WebhookReceipt, error) {
	vendor, err := s.activeVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.ForVendor(ctx, vendor)
	if err != nil {
		return nil, err
	}
	inbound, ok := adapter.(vendorsync.InboundAdapter)
	if !ok {
		return nil, fmt.Errorf("%w: %s adapter does not accept pushed payloads", vendorsync.ErrCapabilityUnsupported, adapter.Kind())
	}

	batch, err := inbound.ParseInbound(ctx, vendor.ID, body, signature)
	if err != nil {
		s.logger.Warn("Rejected webhook delivery",
			zap.String("vendor_id", vendor.ID),
			zap.Error(err),
		)
		return nil, err
	}

	key := deliveryKey(vendor.ID, batch.DeliveryID)
	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("check webhook delivery: %w", err)
		}
		if !fresh {
			s.logger.Info("Duplicate webhook delivery ignored",
				zap.String("vendor_id", vendor.ID),
				zap.String("delivery_id", batch.DeliveryID),
			)
			return nil, fmt.Errorf("%w: %s", vendorsync.ErrDuplicateDelivery, batch.DeliveryID)
		}
	}

	receipt := &WebhookReceipt{
		DeliveryID: batch.DeliveryID,
		SyncType:   batch.SyncType,
		Records:    len(batch.Records),
	}
	if len(batch.Records) == 0 {
		s.logger.Debug("Webhook delivery carried no records",
			zap.String("vendor_id", vendor.ID),
			zap.String("delivery_id", batch.DeliveryID),
		)
		return receipt, nil
	}

	job, err := vendorsync.NewSyncJob(vendor.ID, batch.SyncType, vendorsync.PriorityForced, s.retriesFor(vendor), vendorsync.TriggerEvent)
	if err != nil {
		s.forget(ctx, key)
		return nil, err
	}
	job.Payload = batch.Records

	queued, err := s.enqueue(ctx, job)
	if err != nil {
		// let the vendor redeliver
		s.forget(ctx, key)
		return nil, err
	}
	receipt.Job = queued
	return receipt, nil
}

func (s *SyncService) forget(ctx context.Context, key string) {
	if s.idempotency == nil {
		return
	}
	if err := s.idempotency.Forget(ctx, key); err != nil {
		s.logger.Warn("Failed to release webhook delivery key",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func deliveryKey(vendorID, deliveryID string) string {
	return "webhook:" + vendorID + ":" + deliveryID
}
