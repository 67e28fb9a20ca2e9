package dcutr

import (
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-dcutr/config"
	"github.com/dep2p/go-dcutr/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 用户配置（JSON/文件加载）
	config *config.Config

	// 预设名称，在 config 之上应用
	preset string

	// 时钟，测试中替换为 clock.Mock
	clock clock.Clock

	// 本地打洞地址
	addrs interfaces.AddrSource

	// 指标注册器，优先于 config.Metrics.Enabled
	registerer prometheus.Registerer

	// 结果回调
	handlers []func(Outcome)

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// toConfig 合并配置与预设
func (o *options) toConfig() (*config.Config, error) {
	cfg := config.CloneConfig(o.config)
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := config.ApplyPreset(cfg, o.preset); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithConfig 使用完整配置
//
// 同时按 cfg.Log 重设全局日志级别和格式。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithPreset 应用预设（"mobile"、"desktop"、"server"）
func WithPreset(name string) Option {
	return func(o *options) error {
		o.preset = name
		return nil
	}
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithAddrSource 设置本地打洞地址来源
func WithAddrSource(addrs interfaces.AddrSource) Option {
	return func(o *options) error {
		o.addrs = addrs
		return nil
	}
}

// WithMetricsRegisterer 设置 Prometheus 注册器
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithOutcomeHandler 注册结果回调
//
// 回调在独立的 goroutine 中按顺序执行，适合把结果转交给连接管理或地址簿。
func WithOutcomeHandler(handler func(Outcome)) Option {
	return func(o *options) error {
		if handler == nil {
			return errors.New("outcome handler is nil")
		}
		o.handlers = append(o.handlers, handler)
		return nil
	}
}

// WithFxOptions 追加 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
