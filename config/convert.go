package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保持默认值。
//
// 示例 JSON:
//
//	{
//	  "holepunch": {"dial_timeout": "20s", "max_concurrent_attempts": 128},
//	  "log": {"level": "debug"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化配置
func ToJSON(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "mobile": 低并发、较长冷却
//   - "desktop": 默认值
//   - "server": 高并发、启用准入限速
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "mobile":
		cfg.HolePunch.MaxConcurrentAttempts = 8
		cfg.HolePunch.FailureCooldown = Duration(5 * time.Minute)
		cfg.HolePunch.CooldownCacheSize = 256
	case "desktop", "":
	case "server":
		cfg.HolePunch.MaxConcurrentAttempts = 512
		cfg.HolePunch.MaxAttemptsPerPeer = 2
		cfg.HolePunch.CooldownCacheSize = 8192
		cfg.HolePunch.MaxAttemptRate = 50
		cfg.HolePunch.AttemptRateBurst = 100
		cfg.Metrics.Enabled = true
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
	return nil
}

// CloneConfig 深拷贝配置
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	return &clone
}
