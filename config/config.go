// Package config 提供统一的配置管理
//
// 本包采用与 JSON 一一对应的用户配置：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 时长字段使用 Duration，JSON 中写作 "10s"、"1m" 等
//   - 支持预设配置（mobile/desktop/server）
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.HolePunch.MaxConcurrentAttempts = 128
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
//
//	// 应用预设
//	err = config.ApplyPreset(cfg, "server")
package config

import (
	"fmt"
)

// Config 是 go-dcutr 的完整配置结构
//
// 配置按照功能模块组织：
//   - HolePunch: 打洞协调（超时、准入控制）
//   - Log: 日志输出
//   - Metrics: 指标采集
type Config struct {
	// HolePunch 打洞配置
	HolePunch HolePunchConfig `json:"holepunch"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		HolePunch: DefaultHolePunchConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if err := c.HolePunch.Validate(); err != nil {
		return fmt.Errorf("holepunch: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
