package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.HolePunch.PeerConnectTimeout.Duration())
	assert.Equal(t, 15*time.Second, cfg.HolePunch.DialTimeout.Duration())
	assert.Equal(t, 64, cfg.HolePunch.MaxConcurrentAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"holepunch": {"dial_timeout": "20s", "failure_cooldown": 1000000000, "max_concurrent_attempts": 128},
		"log": {"level": "debug", "format": "json"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.HolePunch.DialTimeout.Duration())
	assert.Equal(t, time.Second, cfg.HolePunch.FailureCooldown.Duration())
	assert.Equal(t, 128, cfg.HolePunch.MaxConcurrentAttempts)
	assert.Equal(t, 10*time.Second, cfg.HolePunch.SyncTimeout.Duration(), "未出现的字段保持默认值")
	assert.Equal(t, "json", cfg.Log.Format)

	t.Run("无效时长", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"holepunch": {"sync_timeout": "soon"}}`))
		assert.Error(t, err)
		_, err = FromJSON([]byte(`{"holepunch": {"sync_timeout": true}}`))
		assert.Error(t, err)
	})

	t.Run("无效取值", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"holepunch": {"max_attempts_per_peer": 0}}`))
		assert.Error(t, err)
		_, err = FromJSON([]byte(`{"log": {"level": "verbose"}}`))
		assert.Error(t, err)
	})
}

func TestToJSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.HolePunch.DialTimeout = Duration(1500 * time.Millisecond)

	data, err := ToJSON(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dial_timeout": "1.5s"`)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Duration())
	assert.Equal(t, "250ms", d.String())
}

func TestApplyPreset(t *testing.T) {
	for _, name := range []string{"mobile", "desktop", "server", ""} {
		t.Run(name, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, ApplyPreset(cfg, name))
			assert.NoError(t, cfg.Validate())
		})
	}

	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, "server"))
	assert.True(t, cfg.Metrics.Enabled)
	assert.Greater(t, cfg.HolePunch.MaxAttemptRate, 0.0)

	assert.Error(t, ApplyPreset(NewConfig(), "unknown"))
	assert.Error(t, ApplyPreset(nil, "server"))
}

func TestCloneConfig(t *testing.T) {
	cfg := NewConfig()
	clone := CloneConfig(cfg)
	clone.HolePunch.MaxConcurrentAttempts = 1
	assert.Equal(t, 64, cfg.HolePunch.MaxConcurrentAttempts)
	assert.Nil(t, CloneConfig(nil))
}
