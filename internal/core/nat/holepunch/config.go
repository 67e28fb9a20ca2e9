package holepunch

import (
	"errors"
	"time"
)

// Config 打洞服务配置
type Config struct {
	// PeerConnectTimeout 等待对方 CONNECT 的超时（含控制流建立）
	PeerConnectTimeout time.Duration

	// SyncTimeout 发送/等待 SYNC 的超时
	SyncTimeout time.Duration

	// DialTimeout 进入拨号阶段后等待直连建立的超时
	DialTimeout time.Duration

	// MaxConcurrentAttempts 全局同时进行的打洞尝试上限
	MaxConcurrentAttempts int

	// MaxAttemptsPerPeer 单个节点同时进行的打洞尝试上限
	MaxAttemptsPerPeer int

	// FailureCooldown 失败后拒绝再次尝试的冷却窗口
	FailureCooldown time.Duration

	// CooldownCacheSize 冷却表容量，超出后按 LRU 淘汰
	CooldownCacheSize int

	// MaxAttemptRate 全局准入速率（次/秒），0 表示不限制
	MaxAttemptRate float64

	// AttemptRateBurst 准入速率的突发容量
	AttemptRateBurst int

	// OutcomeBuffer 每个结果订阅者的缓冲区大小
	OutcomeBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		PeerConnectTimeout:    10 * time.Second,
		SyncTimeout:           10 * time.Second,
		DialTimeout:           15 * time.Second,
		MaxConcurrentAttempts: 64,
		MaxAttemptsPerPeer:    1,
		FailureCooldown:       time.Minute,
		CooldownCacheSize:     1024,
		MaxAttemptRate:        0,
		AttemptRateBurst:      8,
		OutcomeBuffer:         16,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("holepunch: config is nil")
	}
	if c.PeerConnectTimeout <= 0 {
		return errors.New("holepunch: peer connect timeout must be positive")
	}
	if c.SyncTimeout <= 0 {
		return errors.New("holepunch: sync timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("holepunch: dial timeout must be positive")
	}
	if c.MaxConcurrentAttempts <= 0 {
		return errors.New("holepunch: max concurrent attempts must be positive")
	}
	if c.MaxAttemptsPerPeer <= 0 {
		return errors.New("holepunch: max attempts per peer must be positive")
	}
	if c.MaxAttemptsPerPeer > c.MaxConcurrentAttempts {
		return errors.New("holepunch: max attempts per peer exceeds global limit")
	}
	if c.FailureCooldown < 0 {
		return errors.New("holepunch: failure cooldown must not be negative")
	}
	if c.CooldownCacheSize <= 0 {
		return errors.New("holepunch: cooldown cache size must be positive")
	}
	if c.MaxAttemptRate < 0 {
		return errors.New("holepunch: attempt rate must not be negative")
	}
	if c.MaxAttemptRate > 0 && c.AttemptRateBurst <= 0 {
		return errors.New("holepunch: attempt rate burst must be positive")
	}
	if c.OutcomeBuffer < 0 {
		return errors.New("holepunch: outcome buffer must not be negative")
	}
	return nil
}

// Option 配置选项函数
type Option func(*Config) error

// Apply 依次应用选项并验证
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return c.Validate()
}

// WithTimeouts 设置三个阶段的超时
func WithTimeouts(peerConnect, sync, dial time.Duration) Option {
	return func(c *Config) error {
		c.PeerConnectTimeout = peerConnect
		c.SyncTimeout = sync
		c.DialTimeout = dial
		return nil
	}
}

// WithConcurrency 设置全局与单节点并发上限
func WithConcurrency(global, perPeer int) Option {
	return func(c *Config) error {
		c.MaxConcurrentAttempts = global
		c.MaxAttemptsPerPeer = perPeer
		return nil
	}
}

// WithCooldown 设置失败冷却窗口与冷却表容量
func WithCooldown(window time.Duration, cacheSize int) Option {
	return func(c *Config) error {
		c.FailureCooldown = window
		c.CooldownCacheSize = cacheSize
		return nil
	}
}

// WithAttemptRate 设置全局准入速率
func WithAttemptRate(perSecond float64, burst int) Option {
	return func(c *Config) error {
		if perSecond < 0 {
			return errors.New("holepunch: attempt rate must not be negative")
		}
		c.MaxAttemptRate = perSecond
		c.AttemptRateBurst = burst
		return nil
	}
}
