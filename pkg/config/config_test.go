package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbconv/rbconv/pkg/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".rbconv.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "miniruby", cfg.Convert.Backend)
	assert.Equal(t, []string{"functions", "camelcase", "return"}, cfg.Convert.Filters)
	assert.Equal(t, "es2015", cfg.Convert.ES)
	assert.Equal(t, "double", cfg.Convert.Quote)
	assert.True(t, cfg.Convert.Semicolons)
	assert.False(t, cfg.Convert.Strict)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
convert:
  es: es2020
  quote: single
  filters: [camelcase]
  strict: true

cache:
  max_size: 128MB

logging:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "es2020", cfg.Convert.ES)
	assert.Equal(t, "single", cfg.Convert.Quote)
	assert.Equal(t, []string{"camelcase"}, cfg.Convert.Filters)
	assert.True(t, cfg.Convert.Strict)
	assert.Equal(t, "128MB", cfg.Cache.MaxSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, "miniruby", cfg.Convert.Backend)
	assert.True(t, cfg.Convert.Semicolons)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RBCONV_CONVERT_ES", "es5")
	t.Setenv("RBCONV_CONVERT_QUOTE", "single")
	t.Setenv("RBCONV_LOGGING_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "es5", cfg.Convert.ES)
	assert.Equal(t, "single", cfg.Convert.Quote)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
convert:
  es: es2015
  semicolon: false
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrSchema)
	assert.Contains(t, err.Error(), "semicolon")
}

func TestLoadRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
convert:
  filters: camelcase
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrSchema)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RBCONV_CONVERT_ES", "es2038")

	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalidES)
}

func TestLoadRejectsInvalidQuote(t *testing.T) {
	t.Setenv("RBCONV_CONVERT_QUOTE", "backtick")

	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalidQuote)
}

func TestLoadRejectsBadCacheSize(t *testing.T) {
	t.Setenv("RBCONV_CACHE_MAX_SIZE", "lots")

	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalidMaxSize)
}

func TestMaxSizeBytes(t *testing.T) {
	t.Parallel()

	cache := config.CacheConfig{MaxSize: "4MB", Enabled: true}

	size, err := cache.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000), size)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
}
