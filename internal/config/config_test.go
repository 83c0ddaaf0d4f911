package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 15*time.Minute, cfg.Business.ReservationTTL())
	assert.Equal(t, 24*time.Hour, cfg.Business.PendingHold())
	assert.Equal(t, 5*time.Minute, cfg.Business.SweepInterval())
	assert.Equal(t, "COP", cfg.Business.Currency)
	assert.Equal(t, 5, cfg.MySQL.LockWaitTimeoutSeconds)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
mysql:
  host: db.internal
business:
  reservation_ttl_minutes: 10
`), 0o600))

	t.Setenv("RIFAS_MYSQL_PASSWORD", "s3cret")
	t.Setenv("RIFAS_BUSINESS_PENDING_HOLD_HOURS", "48")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, "s3cret", cfg.MySQL.Password)
	assert.Equal(t, 10*time.Minute, cfg.Business.ReservationTTL())
	assert.Equal(t, 48*time.Hour, cfg.Business.PendingHold())
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoadConfigValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kafka:
  enabled: true
`), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "kafka.brokers")

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	for _, size := range []string{"0", "-1"} {
		require.NoError(t, os.WriteFile(path, []byte("business:\n  sweep_batch_size: "+size+"\n"), 0o600))
		_, err = LoadConfig(path)
		assert.ErrorContains(t, err, "business.sweep_batch_size", "size %s", size)
	}

	t.Setenv("RIFAS_BUSINESS_SWEEP_BATCH_SIZE", "0")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "business.sweep_batch_size")
}
