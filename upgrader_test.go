package dcutr

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-dcutr/config"
	"github.com/dep2p/go-dcutr/internal/core/nat/holepunch"
	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/lib/log"
	"github.com/dep2p/go-dcutr/pkg/types"
	"github.com/dep2p/go-dcutr/tests/mocks"
	tu "github.com/dep2p/go-dcutr/tests/testutil"
)

func dialerReturning(conn interfaces.DirectConn) *mocks.MockDialer {
	return &mocks.MockDialer{
		DialFunc: func(context.Context, types.PeerID, []types.Multiaddr) (interfaces.DirectConn, error) {
			return conn, nil
		},
	}
}

func addrSource(addrs []types.Multiaddr) Option {
	return WithAddrSource(interfaces.AddrSourceFunc(func() []types.Multiaddr { return addrs }))
}

func collect(ch chan Outcome) Option {
	return WithOutcomeHandler(func(out Outcome) { ch <- out })
}

func nextOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("等待结果超时")
		return Outcome{}
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("缺少拨号器", func(t *testing.T) {
		_, err := New(ctx, nil, nil)
		assert.Error(t, err)
	})

	t.Run("未知预设", func(t *testing.T) {
		_, err := New(ctx, nil, &mocks.MockDialer{}, WithPreset("datacenter"))
		assert.Error(t, err)
	})

	t.Run("空配置", func(t *testing.T) {
		_, err := New(ctx, nil, &mocks.MockDialer{}, WithConfig(nil))
		assert.Error(t, err)
	})

	t.Run("无效配置", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.HolePunch.DialTimeout = 0
		_, err := New(ctx, nil, &mocks.MockDialer{}, WithConfig(cfg))
		assert.Error(t, err)
	})

	t.Run("空回调", func(t *testing.T) {
		_, err := New(ctx, nil, &mocks.MockDialer{}, WithOutcomeHandler(nil))
		assert.Error(t, err)
	})
}

func TestUpgrader_EndToEnd(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	relayA := &mocks.MockRelayNotifier{}
	relayB := &mocks.MockRelayNotifier{}
	reg := prometheus.NewRegistry()
	outsA := make(chan Outcome, 4)
	outsB := make(chan Outcome, 4)

	directAB := mocks.NewMockDirectConn(tu.PeerB, tu.AddrsB()[0])
	directBA := mocks.NewMockDirectConn(tu.PeerA, tu.AddrsA()[0])

	upA, err := New(ctx, relayA, dialerReturning(directAB),
		addrSource(tu.AddrsA()),
		WithMetricsRegisterer(reg),
		collect(outsA),
	)
	require.NoError(t, err)
	upB, err := New(ctx, relayB, dialerReturning(directBA),
		addrSource(tu.AddrsB()),
		collect(outsB),
	)
	require.NoError(t, err)

	require.NoError(t, upA.Start(ctx))
	require.NoError(t, upB.Start(ctx))
	assert.Equal(t, 1, relayA.Count())

	connA, connB := mocks.NewRelayPair(tu.PeerA, tu.PeerB, nil, 5*time.Millisecond)
	defer connA.Close()

	relayA.Connected(connA, types.RoleInitiator)
	relayB.Connected(connB, types.RoleResponder)

	outA := nextOutcome(t, outsA)
	outB := nextOutcome(t, outsB)
	require.True(t, outA.Succeeded(), "initiator: %v", outA.Err)
	require.True(t, outB.Succeeded(), "responder: %v", outB.Err)
	assert.Same(t, directAB, outA.Conn)

	t.Run("统计与指标", func(t *testing.T) {
		stats := upA.Stats()
		assert.Equal(t, uint64(1), stats.Admitted)
		assert.Equal(t, 0, stats.Active)
		assert.False(t, upA.IsActive(tu.PeerB))
		assert.Empty(t, upA.ActiveAttempts())
		assert.False(t, upA.InCooldown(tu.PeerB))

		count, err := testutil.GatherAndCount(reg, "dcutr_holepunch_attempts_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	require.NoError(t, upA.Close())
	require.NoError(t, upB.Close())
	assert.Equal(t, 0, relayA.Count(), "关闭时注销中继事件")
}

// replayNotifier 在 Notify 时立即上报已有的中继连接
type replayNotifier struct {
	mocks.MockRelayNotifier
	existing []interfaces.RelayedConn
}

func (r *replayNotifier) Notify(n interfaces.RelayNotifiee) {
	r.MockRelayNotifier.Notify(n)
	for _, conn := range r.existing {
		n.RelayConnected(conn, types.RoleResponder)
	}
}

func TestUpgrader_HandlerSeesOutcomesDuringStart(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	conn1 := mocks.NewMockRelayedConn(tu.PeerB)
	conn2 := mocks.NewMockRelayedConn(tu.PeerB)
	defer conn1.Close()
	defer conn2.Close()
	relay := &replayNotifier{existing: []interfaces.RelayedConn{conn1, conn2}}

	outs := make(chan Outcome, 4)
	up, err := New(ctx, relay, &mocks.MockDialer{}, collect(outs))
	require.NoError(t, err)
	require.NoError(t, up.Start(ctx))

	// 第二条连接超出单节点上限
	out := nextOutcome(t, outs)
	assert.False(t, out.Admitted)
	assert.Equal(t, tu.PeerB, out.Peer)
	assert.ErrorIs(t, out.Err, ErrTooManyConcurrentAttempts)
	assert.Equal(t, uint64(1), up.Stats().Rejected)

	require.NoError(t, up.Close())
}

func TestUpgrader_StartFailureStopsHandlers(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	errBoom := errors.New("hook failed")
	failingHook := fx.Invoke(func(lc fx.Lifecycle) {
		lc.Append(fx.Hook{OnStart: func(context.Context) error { return errBoom }})
	})

	outs := make(chan Outcome, 1)
	up, err := New(ctx, nil, &mocks.MockDialer{}, collect(outs), WithFxOptions(failingHook))
	require.NoError(t, err)

	err = up.Start(ctx)
	assert.ErrorContains(t, err, "hook failed")
	assert.NoError(t, up.Close())
}

func TestUpgrader_DirectConnect(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	up, err := New(ctx, nil, &mocks.MockDialer{}, addrSource(tu.AddrsA()))
	require.NoError(t, err)

	_, err = up.DirectConnect(ctx, tu.PeerB)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, up.Start(ctx))
	_, err = up.DirectConnect(ctx, tu.PeerB)
	assert.ErrorIs(t, err, ErrNoRelayedConn)

	require.NoError(t, up.Close())
	_, err = up.DirectConnect(ctx, tu.PeerB)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUpgrader_Lifecycle(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	t.Run("重复启动", func(t *testing.T) {
		up, err := New(ctx, nil, &mocks.MockDialer{})
		require.NoError(t, err)
		require.NoError(t, up.Start(ctx))
		assert.ErrorIs(t, up.Start(ctx), ErrAlreadyStarted)
		require.NoError(t, up.Close())
		assert.NoError(t, up.Close(), "重复关闭")
		assert.ErrorIs(t, up.Start(ctx), ErrClosed)
	})

	t.Run("未启动直接关闭", func(t *testing.T) {
		up, err := New(ctx, nil, &mocks.MockDialer{})
		require.NoError(t, err)
		assert.NoError(t, up.Close())
	})

	t.Run("手动通知中继事件", func(t *testing.T) {
		up, err := New(ctx, nil, &mocks.MockDialer{}, WithPreset("mobile"))
		require.NoError(t, err)
		require.NoError(t, up.Start(ctx))

		conn := mocks.NewMockRelayedConn(tu.PeerB)
		defer conn.Close()
		up.RelayConnected(conn, types.RoleResponder)
		assert.True(t, up.IsActive(tu.PeerB))

		up.RelayDisconnected(conn)
		tu.Eventually(t, 5*time.Second, func() bool {
			return !up.IsActive(tu.PeerB)
		}, "尝试应该结束")
		assert.True(t, up.InCooldown(tu.PeerB))
		require.NoError(t, up.Close())
	})
}

func TestUpgrader_InboundDirectConn(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	outs := make(chan Outcome, 1)
	up, err := New(ctx, nil, &mocks.MockDialer{}, collect(outs))
	require.NoError(t, err)
	require.NoError(t, up.Start(ctx))
	defer up.Close()

	conn := mocks.NewMockRelayedConn(tu.PeerB)
	defer conn.Close()
	up.RelayConnected(conn, types.RoleResponder)

	inbound := mocks.NewMockDirectConn(tu.PeerB, tu.AddrsB()[0])
	up.DirectConnected(inbound)

	out := nextOutcome(t, outs)
	require.True(t, out.Succeeded())
	assert.True(t, out.Inbound)
	assert.False(t, inbound.IsClosed())
}

func TestUpgrader_Options(t *testing.T) {
	ctx := context.Background()

	t.Run("应用日志配置", func(t *testing.T) {
		prev := slog.Default()
		defer log.SetDefault(prev)

		cfg := config.NewConfig()
		cfg.Log.Level = "error"
		up, err := New(ctx, nil, &mocks.MockDialer{}, WithConfig(cfg))
		require.NoError(t, err)
		defer up.Close()
		assert.False(t, log.Default().Enabled(ctx, log.LevelWarn))
	})

	t.Run("自定义Fx选项", func(t *testing.T) {
		var svc *holepunch.Service
		up, err := New(ctx, nil, &mocks.MockDialer{}, WithFxOptions(fx.Populate(&svc)))
		require.NoError(t, err)
		defer up.Close()
		assert.NotNil(t, svc)
	})

	t.Run("预设叠加在配置之上", func(t *testing.T) {
		cfg := config.NewConfig()
		reg := prometheus.NewRegistry()
		up, err := New(ctx, nil, &mocks.MockDialer{},
			WithConfig(cfg),
			WithPreset("server"),
			WithMetricsRegisterer(reg),
		)
		require.NoError(t, err)
		defer up.Close()
		assert.False(t, cfg.Metrics.Enabled, "调用方的配置不被修改")
	})
}
