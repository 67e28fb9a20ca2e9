package dcutr

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-dcutr/config"
	"github.com/dep2p/go-dcutr/internal/core/nat/holepunch"
	"github.com/dep2p/go-dcutr/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序：
//  1. 配置与外部协作者注入（RelayNotifier、Dialer、AddrSource、Clock）
//  2. 指标注册器（显式设置或配置启用时）
//  3. holepunch 模块
//  4. 用户自定义 Fx 选项
func buildFxApp(cfg *config.Config, o *options, relay interfaces.RelayNotifier, dialer interfaces.Dialer, up *Upgrader) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(
			func() interfaces.Dialer { return dialer },
			func() interfaces.RelayNotifier { return relay },
		),
	}

	if o.addrs != nil {
		addrs := o.addrs
		modules = append(modules, fx.Provide(func() interfaces.AddrSource { return addrs }))
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	reg := o.registerer
	if reg == nil && cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	if reg != nil {
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	modules = append(modules,
		holepunch.Module(),
		fx.Populate(&up.service),
	)
	modules = append(modules, o.fxOptions...)

	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}
