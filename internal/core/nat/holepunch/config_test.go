package holepunch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.PeerConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 15*time.Second, cfg.DialTimeout)
	assert.Equal(t, 64, cfg.MaxConcurrentAttempts)
	assert.Equal(t, 1, cfg.MaxAttemptsPerPeer)
	assert.Equal(t, time.Minute, cfg.FailureCooldown)
	assert.Zero(t, cfg.MaxAttemptRate, "默认不限速")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"PeerConnectTimeout 为 0", func(c *Config) { c.PeerConnectTimeout = 0 }},
		{"SyncTimeout 为负", func(c *Config) { c.SyncTimeout = -time.Second }},
		{"DialTimeout 为 0", func(c *Config) { c.DialTimeout = 0 }},
		{"全局上限为 0", func(c *Config) { c.MaxConcurrentAttempts = 0 }},
		{"单节点上限为 0", func(c *Config) { c.MaxAttemptsPerPeer = 0 }},
		{"单节点上限超过全局", func(c *Config) { c.MaxConcurrentAttempts = 2; c.MaxAttemptsPerPeer = 3 }},
		{"冷却为负", func(c *Config) { c.FailureCooldown = -1 }},
		{"冷却表容量为 0", func(c *Config) { c.CooldownCacheSize = 0 }},
		{"速率为负", func(c *Config) { c.MaxAttemptRate = -1 }},
		{"限速但突发为 0", func(c *Config) { c.MaxAttemptRate = 1; c.AttemptRateBurst = 0 }},
		{"订阅缓冲为负", func(c *Config) { c.OutcomeBuffer = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestConfig_Apply(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Apply(
		WithTimeouts(time.Second, 2*time.Second, 3*time.Second),
		WithConcurrency(8, 2),
		WithCooldown(30*time.Second, 64),
		WithAttemptRate(5, 10),
	)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PeerConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 3*time.Second, cfg.DialTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrentAttempts)
	assert.Equal(t, 2, cfg.MaxAttemptsPerPeer)
	assert.Equal(t, 30*time.Second, cfg.FailureCooldown)
	assert.Equal(t, 64, cfg.CooldownCacheSize)
	assert.Equal(t, 5.0, cfg.MaxAttemptRate)

	t.Run("选项错误", func(t *testing.T) {
		assert.Error(t, DefaultConfig().Apply(WithAttemptRate(-1, 1)))
	})

	t.Run("应用后验证", func(t *testing.T) {
		assert.Error(t, DefaultConfig().Apply(WithConcurrency(1, 2)))
	})
}
