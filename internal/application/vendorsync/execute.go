package vendorsync

import (
	"context"
	"fmt"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExecuteSync runs a pending job to completion or failure. The job is claimed
// with MarkRunning first, so a job already claimed elsewhere is rejected with
// vendorsync.ErrInvalidTransition. A job that fails is acknowledged and handed
// to the retry policy; the returned error is reserved for jobs that could not
// be claimed or acknowledged.
func (s *SyncService) ExecuteSync(ctx context.Context, job *vendorsync.SyncJob) (*vendorsync.SyncJob, error) {
	running, err := s.queue.MarkRunning(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	ctx = logger.WithJob(ctx, running)
	ctx, span := telemetry.StartSpan(ctx, "vendorsync.execute",
		attribute.String("job.id", running.ID.String()),
		attribute.String("vendor.id", running.VendorID),
		attribute.String("sync.type", running.SyncType.String()),
		attribute.Int("job.retry_count", running.RetryCount),
	)
	defer span.End()

	log := logger.L(ctx, s.logger)
	log.Info("Sync job started",
		zap.Int("priority", running.Priority),
		zap.String("trigger", string(running.Trigger)),
		zap.Int("retry_count", running.RetryCount),
	)
	s.publish(ctx, vendorsync.NewSyncStartedEvent(running))

	result, runErr := s.run(ctx, running)

	// acknowledgements must land even when shutdown cancelled the run
	ackCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		return s.fail(ackCtx, running, runErr, result)
	}

	done, err := s.queue.Ack(ackCtx, running.ID, vendorsync.Succeeded(result))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("ack job %s: %w", running.ID, err)
	}
	totals := result.Totals()
	span.SetAttributes(
		attribute.Int("records.processed", totals.Processed),
		attribute.Int("records.failed", totals.Failed),
	)
	telemetry.SetOK(span)

	s.metrics.RecordJob(ackCtx, done, done.Duration())
	s.publish(ackCtx, vendorsync.NewSyncCompletedEvent(done))
	s.archive(ackCtx, done)
	log.Info("Sync job completed",
		zap.Int("processed", totals.Processed),
		zap.Int("succeeded", totals.Succeeded),
		zap.Int("failed", totals.Failed),
		zap.Int("flagged", totals.Flagged),
		zap.Duration("duration", done.Duration()),
	)
	return done, nil
}

// run fetches and handles every domain of the job. The partial result is
// returned alongside any error.
func (s *SyncService) run(ctx context.Context, job *vendorsync.SyncJob) (*vendorsync.SyncResult, error) {
	result := vendorsync.NewSyncResult()

	vendor, err := s.vendors.FindByID(ctx, job.VendorID)
	if err != nil {
		return result, err
	}
	if !vendor.Active {
		return result, fmt.Errorf("%w: %s", vendorsync.ErrVendorInactive, vendor.ID)
	}

	// event-driven jobs carry their records inline
	if len(job.Payload) > 0 {
		err := s.handle(ctx, job, vendor, job.SyncType, job.Payload, result)
		return result, err
	}

	adapter, err := s.adapters.ForVendor(ctx, vendor)
	if err != nil {
		return result, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return result, err
	}
	defer s.disconnect(adapter, vendor.ID)

	log := logger.L(ctx, s.logger)
	for _, domain := range job.SyncType.SubTypes() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if job.SyncType.IsComposite() {
			capability, err := vendorsync.FetchCapability(domain)
			if err != nil {
				return result, err
			}
			if !adapter.Capabilities().Has(capability) {
				result.Skipped = append(result.Skipped, domain)
				log.Debug("Skipping domain the adapter does not support",
					zap.String("domain", domain.String()),
					zap.String("adapter", adapter.Kind().String()),
				)
				continue
			}
		}

		records, err := vendorsync.Fetch(ctx, adapter, vendor.ID, domain)
		if err != nil {
			return result, fmt.Errorf("fetch %s: %w", domain, err)
		}
		if err := s.handle(ctx, job, vendor, domain, records, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *SyncService) handle(
	ctx context.Context,
	job *vendorsync.SyncJob,
	vendor *vendorsync.Vendor,
	domain vendorsync.SyncType,
	records []vendorsync.VendorRecord,
	result *vendorsync.SyncResult,
) error {
	handler, ok := s.handlers[domain]
	if !ok {
		return fmt.Errorf("%w: no handler for %q", vendorsync.ErrInvalidSyncType, domain)
	}
	report, err := handler.Handle(ctx, job, vendor, records)
	if report != nil {
		result.Reports[domain] = report
		s.metrics.RecordBatch(ctx, report)
	}
	if err != nil {
		return fmt.Errorf("handle %s: %w", domain, err)
	}
	return nil
}

// fail acknowledges a failed run and consults the retry policy. A failure
// the policy rejects is acknowledged as final.
func (s *SyncService) fail(ctx context.Context, job *vendorsync.SyncJob, runErr error, partial *vendorsync.SyncResult) (*vendorsync.SyncJob, error) {
	log := logger.L(ctx, s.logger)

	decision := s.retry.Decide(job, runErr, s.now())
	outcome := vendorsync.Failed(runErr, partial)
	outcome.Final = !decision.Retry

	failed, err := s.queue.Ack(ctx, job.ID, outcome)
	if err != nil {
		return nil, fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	s.metrics.RecordJob(ctx, failed, failed.Duration())

	if decision.Retry {
		requeued, err := s.queue.Requeue(ctx, failed.ID, decision.ReadyAt)
		if err == nil {
			s.metrics.RecordRetry(ctx, failed.SyncType, true)
			s.publish(ctx, vendorsync.NewSyncFailedEvent(failed, false))
			log.Warn("Sync job failed, retry scheduled",
				zap.Error(runErr),
				zap.Int("retry_count", requeued.RetryCount),
				zap.Int("max_retries", requeued.MaxRetries),
				zap.Duration("delay", decision.Delay),
				zap.Time("ready_at", decision.ReadyAt),
			)
			return requeued, nil
		}
		// a cancel that landed during the run closes the retry path
		log.Warn("Sync job not requeued", zap.Error(err))
		decision.Reason = "requeue rejected: " + err.Error()
		if current, getErr := s.queue.GetJob(ctx, failed.ID); getErr == nil {
			failed = current
		}
	}

	s.metrics.RecordRetry(ctx, failed.SyncType, false)
	s.publish(ctx, vendorsync.NewSyncFailedEvent(failed, true))
	s.archive(ctx, failed)
	log.Error("Sync job failed permanently",
		zap.Error(runErr),
		zap.String("reason", decision.Reason),
		zap.Int("retry_count", failed.RetryCount),
		zap.Int("max_retries", failed.MaxRetries),
	)
	return failed, nil
}
