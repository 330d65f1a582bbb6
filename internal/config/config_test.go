package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Digest.TTL)
	assert.Equal(t, 16, cfg.Digest.MaxFanout)
	assert.Equal(t, "https://slack.com/api", cfg.Slack.BaseURL)
	assert.Equal(t, 5, cfg.Slack.Breaker.FailThreshold)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.ClickHouse.Enabled)
	assert.NotEmpty(t, cfg.ClickHouse.DSN)
	assert.Equal(t, "rdigest:", cfg.Redis.KeyPrefix)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
digest:
  ttl: 45s
slack:
  default_bot_token: xoxb-default
  bot_tokens:
    T01: xoxb-team
`), 0o600))
	t.Setenv("RDIGEST_STORE_DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Digest.TTL)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "xoxb-team", cfg.Slack.BotToken("T01"))
	assert.Equal(t, "xoxb-default", cfg.Slack.BotToken("T02"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
