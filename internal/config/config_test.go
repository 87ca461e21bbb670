package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, int64(1000), cfg.Auction.MinIncrement)
	require.Equal(t, 2*time.Minute, cfg.Auction.AntiSnipeWindow)
	require.Equal(t, 30*time.Second, cfg.Auction.SweepInterval)
	require.Equal(t, 5*time.Second, cfg.Auction.GracePeriod)
	require.Empty(t, cfg.Database.URL)
	require.Empty(t, cfg.Redis.URL)
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
server:
  port: 9000
auction:
  min_increment: 500
  public_bidder_name: Anonymous
redis:
  url: localhost:6379
`), 0o600))

	t.Setenv("AUCTION_SERVER__PORT", "9100")
	t.Setenv("AUCTION_AUCTION__GRACE_PERIOD", "1s")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, int64(500), cfg.Auction.MinIncrement)
	require.Equal(t, "Anonymous", cfg.Auction.PublicBidderName)
	require.Equal(t, time.Second, cfg.Auction.GracePeriod)
	require.Equal(t, "localhost:6379", cfg.Redis.URL)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero_increment", func(c *Config) { c.Auction.MinIncrement = 0 }},
		{"zero_window", func(c *Config) { c.Auction.AntiSnipeWindow = 0 }},
		{"zero_sweep", func(c *Config) { c.Auction.SweepInterval = 0 }},
		{"negative_grace", func(c *Config) { c.Auction.GracePeriod = -time.Second }},
		{"no_secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"ping_after_pong", func(c *Config) { c.WebSocket.PingPeriod = c.WebSocket.PongWait }},
	}

	require.NoError(t, Defaults().Validate())

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "log_level", envKey("AUCTION_LOG_LEVEL"))
	require.Equal(t, "server.read_timeout", envKey("AUCTION_SERVER__READ_TIMEOUT"))
}
