package logger

import (
	"context"
	"testing"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestWithJob(t *testing.T) {
	job, err := vendorsync.NewSyncJob("acme", vendorsync.SyncTypeInventory, vendorsync.PriorityNormal, 3, vendorsync.TriggerManual)
	require.NoError(t, err)

	ctx := WithJob(context.Background(), job)
	assert.Equal(t, job.ID.String(), GetJobID(ctx))
	assert.Equal(t, "acme", GetVendorID(ctx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(spanContext(t)))
}

func TestL_InjectsCorrelationFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	job, err := vendorsync.NewSyncJob("acme", vendorsync.SyncTypePricing, vendorsync.PriorityNormal, 3, vendorsync.TriggerManual)
	require.NoError(t, err)
	ctx := WithRequestID(WithJob(spanContext(t), job), "req-1")

	L(ctx, base).Info("sync started")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, job.ID.String(), fields["job_id"])
	assert.Equal(t, "acme", fields["vendor_id"])
}

func TestL_FallsBackToContextLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx, nil).Info("hello")
	assert.Equal(t, 1, recorded.Len())
	assert.Empty(t, recorded.All()[0].Context)
}
