package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT * FROM sync_records", 3 }

	t.Run("query at info level is logged at debug", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Info)
		l.Trace(context.Background(), time.Now(), sql, nil)

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, "SQL Query", entry.Message)
		assert.Equal(t, "SELECT * FROM sync_records", entry.ContextMap()["sql"])
	})

	t.Run("errors carry the job id", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn)
		job, err := vendorsync.NewSyncJob("acme", vendorsync.SyncTypeOrder, vendorsync.PriorityNormal, 3, vendorsync.TriggerManual)
		require.NoError(t, err)

		l.Trace(WithJob(context.Background(), job), time.Now(), sql, errors.New("deadlock"))
		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, job.ID.String(), entry.ContextMap()["job_id"])
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn)
		l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
		assert.Equal(t, 0, recorded.Len())
	})

	t.Run("slow queries warn", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "Slow SQL", recorded.All()[0].Message)
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Info).LogMode(gormlogger.Silent)
		l.Trace(context.Background(), time.Now(), sql, errors.New("x"))
		l.Error(context.Background(), "boom %d", 1)
		assert.Equal(t, 0, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
