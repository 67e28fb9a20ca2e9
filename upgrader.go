package dcutr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-dcutr/internal/core/nat/holepunch"
	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/lib/log"
	"github.com/dep2p/go-dcutr/pkg/types"
)

var logger = log.Logger("dcutr")

const (
	// startTimeout Fx 应用启动超时
	startTimeout = 15 * time.Second

	// stopTimeout Fx 应用停止超时
	stopTimeout = 30 * time.Second
)

// Upgrader 中继到直连的升级器
//
// 由 New 创建，Start 后开始接收中继连接事件，Close 后不可再用。
type Upgrader struct {
	app     *fx.App
	service *holepunch.Service

	handlers []func(Outcome)
	hwg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

var _ interfaces.HolePuncher = (*Upgrader)(nil)

// New 创建 Upgrader
//
// relay 可为 nil，此时需由调用方直接调用 RelayConnected/RelayDisconnected。
func New(_ context.Context, relay interfaces.RelayNotifier, dialer interfaces.Dialer, opts ...Option) (*Upgrader, error) {
	if dialer == nil {
		return nil, errors.New("dcutr: dialer is required")
	}

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg, err := o.toConfig()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if o.config != nil {
		if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, fmt.Errorf("configure log: %w", err)
		}
	}

	up := &Upgrader{handlers: o.handlers}
	up.app = buildFxApp(cfg, o, relay, dialer, up)
	if err := up.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return up, nil
}

// Start 启动 Upgrader
func (u *Upgrader) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrClosed
	}
	if u.started {
		return ErrAlreadyStarted
	}

	// 先订阅再启动：Notify 期间上报的已有连接也会产生结果
	stop := make(chan struct{})
	cancels := make([]func(), 0, len(u.handlers))
	for _, handler := range u.handlers {
		ch, unsubscribe := u.service.Subscribe()
		cancels = append(cancels, unsubscribe)
		u.hwg.Add(1)
		go u.deliver(ch, stop, handler)
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := u.app.Start(startCtx); err != nil {
		for _, unsubscribe := range cancels {
			unsubscribe()
		}
		close(stop)
		u.hwg.Wait()
		logger.Error("启动失败", "error", err)
		return fmt.Errorf("start: %w", err)
	}
	u.started = true

	logger.Info("DCUtR 已启动", "handlers", len(u.handlers))
	return nil
}

// deliver 按顺序把结果交给 handler，直到订阅通道关闭或 stop
func (u *Upgrader) deliver(ch <-chan Outcome, stop <-chan struct{}, handler func(Outcome)) {
	defer u.hwg.Done()
	for {
		select {
		case out, ok := <-ch:
			if !ok {
				return
			}
			handler(out)
		case <-stop:
			return
		}
	}
}

// Close 停止 Upgrader，取消所有进行中的尝试
func (u *Upgrader) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	started := u.started
	u.mu.Unlock()

	var err error
	if started {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = u.app.Stop(stopCtx)
	} else {
		err = u.service.Close()
	}
	// 订阅通道随服务关闭而关闭，回调 goroutine 随之退出
	u.hwg.Wait()

	logger.Info("DCUtR 已停止")
	return err
}

// Subscribe 订阅打洞结果，返回的取消函数用于退订
func (u *Upgrader) Subscribe() (<-chan Outcome, func()) {
	return u.service.Subscribe()
}

// RelayConnected 手动通知中继连接建立
func (u *Upgrader) RelayConnected(conn interfaces.RelayedConn, role types.Role) {
	u.service.RelayConnected(conn, role)
}

// RelayDisconnected 手动通知中继连接关闭
func (u *Upgrader) RelayDisconnected(conn interfaces.RelayedConn) {
	u.service.RelayDisconnected(conn)
}

// DirectConnected 通知收到对方的直连
//
// 传输层接受入站直连后调用，进行中的尝试会直接判定成功。
func (u *Upgrader) DirectConnected(conn interfaces.DirectConn) {
	u.service.DirectConnected(conn)
}

// DirectConnect 在已有中继连接上发起一次打洞并等待结果
func (u *Upgrader) DirectConnect(ctx context.Context, peer types.PeerID) (interfaces.DirectConn, error) {
	u.mu.Lock()
	started, closed := u.started, u.closed
	u.mu.Unlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !started:
		return nil, ErrNotStarted
	}
	return u.service.DirectConnect(ctx, peer)
}

// IsActive 查询与 peer 是否有进行中的尝试
func (u *Upgrader) IsActive(peer types.PeerID) bool {
	return u.service.IsActive(peer)
}

// ActiveAttempts 返回进行中尝试的快照
func (u *Upgrader) ActiveAttempts() []AttemptInfo {
	return u.service.ActiveAttempts()
}

// Stats 返回准入控制统计
func (u *Upgrader) Stats() RegistryStats {
	return u.service.Registry().Stats()
}

// InCooldown 查询 peer 是否处于失败冷却期
func (u *Upgrader) InCooldown(peer types.PeerID) bool {
	return u.service.Registry().InCooldown(peer)
}
