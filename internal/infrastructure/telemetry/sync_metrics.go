package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Webhook ingestion outcomes
const (
	WebhookAccepted  = "accepted"
	WebhookDuplicate = "duplicate"
	WebhookRejected  = "rejected"
)

// SyncMetrics holds the engine's instruments. A nil *SyncMetrics records
// nothing, so callers never need to check.
type SyncMetrics struct {
	jobs        metric.Int64Counter
	jobDuration metric.Float64Histogram
	records     metric.Int64Counter
	conflicts   metric.Int64Counter
	retries     metric.Int64Counter
	webhooks    metric.Int64Counter
}

// NewSyncMetrics creates the instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var (
		m   SyncMetrics
		err error
	)
	if m.jobs, err = meter.Int64Counter("vendorsync.jobs",
		metric.WithDescription("Sync jobs that reached a final state for one attempt"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("jobs counter: %w", err)
	}
	if m.jobDuration, err = meter.Float64Histogram("vendorsync.job.duration",
		metric.WithDescription("Execution time of one job attempt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300)); err != nil {
		return nil, fmt.Errorf("job duration histogram: %w", err)
	}
	if m.records, err = meter.Int64Counter("vendorsync.records",
		metric.WithDescription("Vendor records by handler outcome"),
		metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("records counter: %w", err)
	}
	if m.conflicts, err = meter.Int64Counter("vendorsync.conflicts",
		metric.WithDescription("Conflicts resolved, by strategy"),
		metric.WithUnit("{conflict}")); err != nil {
		return nil, fmt.Errorf("conflicts counter: %w", err)
	}
	if m.retries, err = meter.Int64Counter("vendorsync.retries",
		metric.WithDescription("Retry decisions for failed jobs"),
		metric.WithUnit("{decision}")); err != nil {
		return nil, fmt.Errorf("retries counter: %w", err)
	}
	if m.webhooks, err = meter.Int64Counter("vendorsync.webhooks",
		metric.WithDescription("Inbound webhook deliveries by outcome"),
		metric.WithUnit("{delivery}")); err != nil {
		return nil, fmt.Errorf("webhooks counter: %w", err)
	}
	return &m, nil
}

// RecordJob counts a finished attempt and its duration
func (m *SyncMetrics) RecordJob(ctx context.Context, job *vendorsync.SyncJob, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("sync_type", string(job.SyncType)),
		attribute.String("status", string(job.Status)),
		attribute.String("trigger", string(job.Trigger)),
	)
	m.jobs.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordBatch counts the records of one handler run by outcome
func (m *SyncMetrics) RecordBatch(ctx context.Context, report *vendorsync.BatchReport) {
	if m == nil || report == nil {
		return
	}
	domain := attribute.String("domain", string(report.Domain))
	for outcome, n := range map[string]int{
		"succeeded": report.Succeeded - report.Flagged,
		"flagged":   report.Flagged,
		"failed":    report.Failed,
		"filtered":  report.Filtered,
	} {
		if n > 0 {
			m.records.Add(ctx, int64(n), metric.WithAttributes(domain, attribute.String("outcome", outcome)))
		}
	}
}

// RecordConflict counts one resolved conflict
func (m *SyncMetrics) RecordConflict(ctx context.Context, strategy vendorsync.StrategyName, conflictType vendorsync.ConflictType) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", string(strategy)),
		attribute.String("type", string(conflictType)),
	))
}

// RecordRetry counts a retry decision
func (m *SyncMetrics) RecordRetry(ctx context.Context, syncType vendorsync.SyncType, scheduled bool) {
	if m == nil {
		return
	}
	decision := "terminal"
	if scheduled {
		decision = "scheduled"
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync_type", string(syncType)),
		attribute.String("decision", decision),
	))
}

// RecordWebhook counts an inbound delivery
func (m *SyncMetrics) RecordWebhook(ctx context.Context, vendorID, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vendor_id", vendorID),
		attribute.String("outcome", outcome),
	))
}
