package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 100, cfg.DefaultRowLimit)
	assert.Equal(t, 1000, cfg.MaxRowLimit)
	assert.Equal(t, 10000, cfg.MaxQueryLength)
	assert.Equal(t, 60*time.Second, cfg.QueryTimeout)
	assert.True(t, cfg.AllowInformationSchema)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DBGW_MAX_CONNECTIONS", "3")
	t.Setenv("DBGW_DEFAULT_ROW_LIMIT", "25")
	t.Setenv("DBGW_QUERY_TIMEOUT_SECONDS", "5")
	t.Setenv("DBGW_ALLOW_INFORMATION_SCHEMA", "false")
	t.Setenv("DBGW_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConnections)
	assert.Equal(t, 25, cfg.DefaultRowLimit)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.False(t, cfg.AllowInformationSchema)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsMalformedInteger(t *testing.T) {
	t.Setenv("DBGW_MAX_CONNECTIONS", "ten")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DBGW_MAX_CONNECTIONS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsDefaultLimitAboveMax(t *testing.T) {
	t.Setenv("DBGW_DEFAULT_ROW_LIMIT", "5000")
	t.Setenv("DBGW_MAX_ROW_LIMIT", "1000")

	_, err := Load()
	assert.Error(t, err)
}

func TestRedactedContainsNoSecrets(t *testing.T) {
	cfg := Defaults()
	exported := cfg.Redacted()

	assert.Contains(t, exported, "max_connections")
	assert.Contains(t, exported, "default_row_limit")
	assert.NotContains(t, exported, "secret")
	assert.NotContains(t, exported, "password")
}
