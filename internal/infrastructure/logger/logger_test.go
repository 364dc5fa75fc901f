package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil uses defaults", nil, false},
		{"json to stderr", &Config{Level: "debug", Format: "json", Output: "stderr"}, false},
		{"console warn", &Config{Level: "WARN", Format: "console", Output: "stdout"}, false},
		{"bad level", &Config{Level: "loud", Format: "json"}, true},
		{"bad format", &Config{Level: "info", Format: "xml"}, true},
		{"unwritable file", &Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "missing", "x.log")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_LevelIsApplied(t *testing.T) {
	l, err := New(&Config{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("job completed")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"job completed"`)
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig("development", config.LogConfig{Level: "debug"})
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)

	cfg = FromAppConfig("production", config.LogConfig{Format: "console", Output: "stderr"})
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.Equal(t, "info", cfg.Level)
}
