package logger

import (
	"context"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	jobIDKey     contextKey = "job_id"
	vendorIDKey  contextKey = "vendor_id"
)

// WithContext returns a context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the context's logger, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID tags ctx with an inbound request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id, if any
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithJob tags ctx with the job being executed
func WithJob(ctx context.Context, job *vendorsync.SyncJob) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, job.ID.String())
	return context.WithValue(ctx, vendorIDKey, job.VendorID)
}

// GetJobID returns the job id, if any
func GetJobID(ctx context.Context) string {
	v, _ := ctx.Value(jobIDKey).(string)
	return v
}

// GetVendorID returns the vendor id, if any
func GetVendorID(ctx context.Context) string {
	v, _ := ctx.Value(vendorIDKey).(string)
	return v
}

// GetTraceID returns the active span's trace id, or ""
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// ContextFields returns the correlation fields found in ctx: trace and span
// ids, request id, job id and vendor id.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := GetRequestID(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := GetJobID(ctx); v != "" {
		fields = append(fields, zap.String("job_id", v))
	}
	if v := GetVendorID(ctx); v != "" {
		fields = append(fields, zap.String("vendor_id", v))
	}
	return fields
}

// L returns base enriched with ctx's correlation fields. With a nil base the
// context's own logger is used.
//
//	logger.L(ctx, s.logger).Info("sync completed", zap.Int("records", n))
func L(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = FromContext(ctx)
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
