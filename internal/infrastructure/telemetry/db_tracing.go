package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThresh = 200 * time.Millisecond

// DBTracingPlugin installs otelgorm plus a callback pair that annotates the
// query spans with row counts, table names and slow-query markers.
type DBTracingPlugin struct {
	enabled    bool
	logFullSQL bool
	slowThresh time.Duration
	dbSystem   string
	logger     *zap.Logger
}

// NewDBTracingPlugin creates the plugin from the telemetry and database sections
func NewDBTracingPlugin(tc *config.TelemetryConfig, dc *config.DatabaseConfig, logger *zap.Logger) *DBTracingPlugin {
	thresh := tc.DBSlowQueryThresh
	if thresh <= 0 {
		thresh = defaultSlowQueryThresh
	}
	system := "postgresql"
	if dc != nil && dc.Driver == "sqlite" {
		system = "sqlite"
	}
	return &DBTracingPlugin{
		enabled:    tc.Enabled && tc.DBTraceEnabled,
		logFullSQL: tc.DBLogFullSQL,
		slowThresh: thresh,
		dbSystem:   system,
		logger:     logger,
	}
}

// Register installs the plugin on db. It is a no-op when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.enabled {
		p.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.dbSystem)}
	if !p.logFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.logFullSQL),
		zap.Duration("slow_query_threshold", p.slowThresh),
		zap.String("db_system", p.dbSystem),
	)
	return nil
}

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("vendorsync:span_start_create", markStart); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("vendorsync:span_end_create", p.annotate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("vendorsync:span_start_query", markStart); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("vendorsync:span_end_query", p.annotate); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("vendorsync:span_start_update", markStart); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("vendorsync:span_end_update", p.annotate); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("vendorsync:span_start_delete", markStart); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("vendorsync:span_end_delete", p.annotate); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("vendorsync:span_start_row", markStart); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("vendorsync:span_end_row", p.annotate); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("vendorsync:span_start_raw", markStart); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("vendorsync:span_end_raw", p.annotate)
}

type queryStartKey struct{}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.slowThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
