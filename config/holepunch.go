package config

import (
	"errors"
	"time"
)

// HolePunchConfig 打洞配置
type HolePunchConfig struct {
	// PeerConnectTimeout 等待对方 CONNECT 的超时
	PeerConnectTimeout Duration `json:"peer_connect_timeout"`

	// SyncTimeout SYNC 超时
	SyncTimeout Duration `json:"sync_timeout"`

	// DialTimeout 拨号阶段超时
	DialTimeout Duration `json:"dial_timeout"`

	// MaxConcurrentAttempts 全局并发上限
	MaxConcurrentAttempts int `json:"max_concurrent_attempts"`

	// MaxAttemptsPerPeer 单节点并发上限
	MaxAttemptsPerPeer int `json:"max_attempts_per_peer"`

	// FailureCooldown 失败冷却窗口
	FailureCooldown Duration `json:"failure_cooldown"`

	// CooldownCacheSize 冷却表容量
	CooldownCacheSize int `json:"cooldown_cache_size"`

	// MaxAttemptRate 全局准入速率（次/秒），0 表示不限制
	MaxAttemptRate float64 `json:"max_attempt_rate,omitempty"`

	// AttemptRateBurst 准入速率突发容量
	AttemptRateBurst int `json:"attempt_rate_burst,omitempty"`

	// OutcomeBuffer 结果订阅缓冲
	OutcomeBuffer int `json:"outcome_buffer"`
}

// DefaultHolePunchConfig 返回默认打洞配置
func DefaultHolePunchConfig() HolePunchConfig {
	return HolePunchConfig{
		PeerConnectTimeout:    Duration(10 * time.Second), // 等待对方 CONNECT：10 秒
		SyncTimeout:           Duration(10 * time.Second), // SYNC：10 秒
		DialTimeout:           Duration(15 * time.Second), // 拨号阶段：15 秒
		MaxConcurrentAttempts: 64,                         // 全局并发：64
		MaxAttemptsPerPeer:    1,                          // 单节点并发：1
		FailureCooldown:       Duration(time.Minute),      // 失败冷却：1 分钟
		CooldownCacheSize:     1024,                       // 冷却表：1024 个节点
		AttemptRateBurst:      8,                          // 启用限速时的突发容量
		OutcomeBuffer:         16,                         // 每个订阅者缓冲 16 个结果
	}
}

// Validate 验证打洞配置
func (c HolePunchConfig) Validate() error {
	if c.PeerConnectTimeout <= 0 || c.SyncTimeout <= 0 || c.DialTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.MaxConcurrentAttempts <= 0 {
		return errors.New("max_concurrent_attempts must be positive")
	}
	if c.MaxAttemptsPerPeer <= 0 || c.MaxAttemptsPerPeer > c.MaxConcurrentAttempts {
		return errors.New("max_attempts_per_peer must be in [1, max_concurrent_attempts]")
	}
	if c.FailureCooldown < 0 {
		return errors.New("failure_cooldown must not be negative")
	}
	if c.CooldownCacheSize <= 0 {
		return errors.New("cooldown_cache_size must be positive")
	}
	if c.MaxAttemptRate < 0 {
		return errors.New("max_attempt_rate must not be negative")
	}
	if c.MaxAttemptRate > 0 && c.AttemptRateBurst <= 0 {
		return errors.New("attempt_rate_burst must be positive when rate limiting")
	}
	if c.OutcomeBuffer < 0 {
		return errors.New("outcome_buffer must not be negative")
	}
	return nil
}
