package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearVSyncEnv unsets every VSYNC_ variable for the duration of the test
func clearVSyncEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "VSYNC_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearVSyncEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "vendorsync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "memory", cfg.Queue.Backend)
		assert.Equal(t, "vendorsync:queue", cfg.Queue.KeyPrefix)
		assert.Equal(t, 50, cfg.Queue.BatchSize)
		assert.Equal(t, 3, cfg.Retry.MaxRetries)
		assert.Equal(t, 5*time.Second, cfg.Retry.BaseDelay)
		assert.Zero(t, cfg.Retry.MaxDelay)
		assert.Equal(t, "last-write-wins", cfg.Conflict.Strategy)
		assert.Equal(t, []string{"vendor", "internal"}, cfg.Conflict.SourcePriority)
		assert.Equal(t, 24*time.Hour, cfg.Webhook.IdempotencyTTL)
		assert.Equal(t, "memory", cfg.Webhook.IdempotencyBackend)
	})

	t.Run("schedule cadences enabled with default cron strings", func(t *testing.T) {
		clearVSyncEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, cfg.Schedule.Enabled)
		assert.True(t, cfg.Schedule.Hourly.Enabled)
		assert.True(t, cfg.Schedule.Daily.Enabled)
		assert.True(t, cfg.Schedule.Weekly.Enabled)
		assert.Equal(t, "0 * * * *", cfg.Schedule.Hourly.Schedule)
		assert.Equal(t, "0 2 * * *", cfg.Schedule.Daily.Schedule)
		assert.Equal(t, "0 3 * * 0", cfg.Schedule.Weekly.Schedule)
	})

	t.Run("loads values from environment variables with VSYNC prefix", func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_APP_PORT", "9000")
		t.Setenv("VSYNC_QUEUE_BACKEND", "redis")
		t.Setenv("VSYNC_RETRY_MAX_RETRIES", "5")
		t.Setenv("VSYNC_RETRY_BASE_DELAY", "2s")
		t.Setenv("VSYNC_CONFLICT_STRATEGY", "merge")
		t.Setenv("VSYNC_SCHEDULE_WEEKLY_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "redis", cfg.Queue.Backend)
		assert.Equal(t, "redis", cfg.Webhook.IdempotencyBackend)
		assert.Equal(t, 5, cfg.Retry.MaxRetries)
		assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
		assert.Equal(t, "merge", cfg.Conflict.Strategy)
		assert.False(t, cfg.Schedule.Weekly.Enabled)
		assert.True(t, cfg.Schedule.Daily.Enabled)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("VSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown queue backend", func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_QUEUE_BACKEND", "kafka")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue.backend")
	})

	t.Run("rejects max delay below base delay", func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_RETRY_BASE_DELAY", "10s")
		t.Setenv("VSYNC_RETRY_MAX_DELAY", "1s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry.max_delay")
	})

	t.Run("requires storage credentials when storage enabled", func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.access_key")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearVSyncEnv(t)
		t.Setenv("VSYNC_APP_ENV", "production")
		t.Setenv("VSYNC_DATABASE_PASSWORD", "secure-password")
		t.Setenv("VSYNC_DATABASE_SSLMODE", "require")
		t.Setenv("VSYNC_QUEUE_BACKEND", "redis")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("VSYNC_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires durable queue in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("VSYNC_QUEUE_BACKEND", "memory")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue.backend must be redis in production")
	})
}

func TestFromViper_TOML(t *testing.T) {
	clearVSyncEnv(t)

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
[database]
driver = "sqlite"
path = ":memory:"

[schedule.hourly]
enabled = false
schedule = "15 * * * *"

[conflict]
strategy = "source-priority"
source_priority = ["internal", "vendor"]
`)))

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.DSN())
	assert.False(t, cfg.Schedule.Hourly.Enabled)
	assert.Equal(t, "15 * * * *", cfg.Schedule.Hourly.Schedule)
	assert.Equal(t, "source-priority", cfg.Conflict.Strategy)
	assert.Equal(t, []string{"internal", "vendor"}, cfg.Conflict.SourcePriority)
}

func TestFromViper_ZeroRetriesDisablesRetry(t *testing.T) {
	clearVSyncEnv(t)

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
[retry]
max_retries = 0
`)))

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)

	t.Setenv("VSYNC_RETRY_MAX_RETRIES", "0")
	cfg, err = fromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.local", Port: 6380}
	assert.Equal(t, "cache.local:6380", cfg.Addr())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", Path: "/tmp/vs.db"}
		assert.Equal(t, "/tmp/vs.db", cfg.DSN())
	})
}
