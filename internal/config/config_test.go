package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddress)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Game.StoreTimeout)
	assert.Equal(t, 64, cfg.Game.FanoutWorkers)
	assert.Equal(t, 30*time.Minute, cfg.Game.HistoryRetention)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.Server.WebSocket.PingInterval)
}

func TestLoadReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  http_address: ":9999"
  websocket:
    ping_interval: 5s
database:
  driver: redis
redis:
  address: "redis:6379"
  relay: true
game:
  store_timeout: 2s
  history_retention: 5m
logging:
  format: console
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddress)
	assert.Equal(t, 5*time.Second, cfg.Server.WebSocket.PingInterval)
	assert.Equal(t, "redis", cfg.Database.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.True(t, cfg.Redis.Relay)
	assert.Equal(t, 2*time.Second, cfg.Game.StoreTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Game.HistoryRetention)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, ":9090", cfg.Server.GRPCAddress)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_address: \":7000\"\n"), 0o600))

	t.Setenv("BLACKJACK_SERVER_HTTP_ADDRESS", ":7100")
	t.Setenv("BLACKJACK_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("BLACKJACK_GAME_FANOUT_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Server.HTTPAddress)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 8, cfg.Game.FanoutWorkers)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BLACKJACK_DATABASE_DRIVER", "sqlite")
	_, err := Load("")
	assert.ErrorContains(t, err, "database.driver")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Game.StoreTimeout = 0
	assert.Error(t, cfg.Validate())
}
