package holepunch

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-dcutr/config"
	"github.com/dep2p/go-dcutr/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Dialer 直连拨号器
	Dialer interfaces.Dialer

	// Config 配置（可选，优先于 UnifiedCfg）
	Config *Config `optional:"true"`

	// UnifiedCfg 统一配置（可选）
	UnifiedCfg *config.Config `optional:"true"`

	// Clock 时钟（可选）
	Clock clock.Clock `optional:"true"`

	// AddrSource 本地打洞地址（可选）
	AddrSource interfaces.AddrSource `optional:"true"`

	// RelayNotifier 中继连接事件源（可选）
	RelayNotifier interfaces.RelayNotifier `optional:"true"`

	// Registerer 指标注册器（可选，缺省时不采集指标）
	Registerer prometheus.Registerer `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Service 打洞服务
	Service *Service

	// HolePuncher 打洞器
	HolePuncher interfaces.HolePuncher `name:"hole_puncher"`

	// RelayNotifiee 中继连接事件接收者
	RelayNotifiee interfaces.RelayNotifiee `name:"holepunch_notifiee"`
}

// ConfigFromUnified 从统一配置创建打洞配置
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	hp := cfg.HolePunch
	return &Config{
		PeerConnectTimeout:    hp.PeerConnectTimeout.Duration(),
		SyncTimeout:           hp.SyncTimeout.Duration(),
		DialTimeout:           hp.DialTimeout.Duration(),
		MaxConcurrentAttempts: hp.MaxConcurrentAttempts,
		MaxAttemptsPerPeer:    hp.MaxAttemptsPerPeer,
		FailureCooldown:       hp.FailureCooldown.Duration(),
		CooldownCacheSize:     hp.CooldownCacheSize,
		MaxAttemptRate:        hp.MaxAttemptRate,
		AttemptRateBurst:      hp.AttemptRateBurst,
		OutcomeBuffer:         hp.OutcomeBuffer,
	}
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	opts := []ServiceOption{
		WithClock(input.Clock),
		WithRelayNotifier(input.RelayNotifier),
	}
	cfg := input.Config
	if cfg == nil {
		cfg = ConfigFromUnified(input.UnifiedCfg)
	}

	namespace := MetricsNamespace
	if input.UnifiedCfg != nil && input.UnifiedCfg.Metrics.Namespace != "" {
		namespace = input.UnifiedCfg.Metrics.Namespace
	}
	if input.Registerer != nil {
		metrics, err := PrometheusMetrics(input.Registerer, namespace)
		if err != nil {
			return ModuleOutput{}, err
		}
		opts = append(opts, WithMetrics(metrics))
	}

	service, err := NewService(cfg, input.Dialer, input.AddrSource, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	return ModuleOutput{
		Service:       service,
		HolePuncher:   service,
		RelayNotifiee: service,
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Service *Service
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Service.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			if err := input.Service.Close(); err != nil {
				logger.Warn("打洞服务关闭失败", "err", err)
			}
			return nil
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version          = "1.0.0"
	Name             = "holepunch"
	Description      = "DCUtR 打洞模块，经中继协调双方同时拨号以建立直连"
	MetricsNamespace = "dcutr"
)
