package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.OpsAddr)
	assert.Equal(t, 5*time.Second, cfg.OpsReadTimeout)
	assert.Equal(t, SequencePostgres, cfg.SequenceBackend)
	assert.Equal(t, int32(16), cfg.PGMaxConns)
	assert.Equal(t, 4, cfg.IntegrityConcurrency)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SEQUENCE_BACKEND", "redis")
	t.Setenv("PG_MAX_CONNS", "4")
	t.Setenv("INTEGRITY_CRON", "@every 1h")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, SequenceRedis, cfg.SequenceBackend)
	assert.Equal(t, int32(4), cfg.PGMaxConns)
	assert.Equal(t, "@every 1h", cfg.IntegrityCron)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"log format":  {"LOG_FORMAT", "xml"},
		"log level":   {"LOG_LEVEL", "trace"},
		"backend":     {"SEQUENCE_BACKEND", "memory"},
		"max conns":   {"PG_MAX_CONNS", "0"},
		"concurrency": {"INTEGRITY_CONCURRENCY", "-1"},
		"not a count": {"PG_MAX_CONNS", "many"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "test"}, &buf)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"env":"test"`)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
