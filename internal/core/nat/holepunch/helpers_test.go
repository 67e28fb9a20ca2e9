package holepunch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	pb "github.com/dep2p/go-dcutr/pkg/lib/proto/holepunch"
	"github.com/dep2p/go-dcutr/pkg/protocolids"
	"github.com/dep2p/go-dcutr/pkg/types"
	"github.com/dep2p/go-dcutr/tests/mocks"
	"github.com/dep2p/go-dcutr/tests/testutil"
)

// ============================================================================
//                              拨号调度
// ============================================================================

type scheduledDial struct {
	at  time.Time
	req DialRequest
}

// fakeScheduler 记录拨号指令，dial 为 nil 时阻塞到 ctx 结束
type fakeScheduler struct {
	clock clock.Clock
	dial  func(ctx context.Context, req DialRequest) (interfaces.DirectConn, error)

	mu    sync.Mutex
	calls []scheduledDial
}

func (f *fakeScheduler) ScheduleDial(ctx context.Context, req DialRequest, report func(interfaces.DirectConn, error)) {
	f.mu.Lock()
	f.calls = append(f.calls, scheduledDial{at: f.clock.Now(), req: req})
	f.mu.Unlock()

	dial := f.dial
	if dial == nil {
		dial = func(ctx context.Context, _ DialRequest) (interfaces.DirectConn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}
	go func() {
		conn, err := dial(ctx, req)
		report(conn, err)
	}()
}

func (f *fakeScheduler) Calls() []scheduledDial {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledDial(nil), f.calls...)
}

// succeedWith 拨号立即成功
func succeedWith(conn interfaces.DirectConn) func(context.Context, DialRequest) (interfaces.DirectConn, error) {
	return func(context.Context, DialRequest) (interfaces.DirectConn, error) {
		return conn, nil
	}
}

// ============================================================================
//                              协调器
// ============================================================================

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.PeerConnectTimeout = 300 * time.Millisecond
	cfg.SyncTimeout = 300 * time.Millisecond
	cfg.DialTimeout = 300 * time.Millisecond
	return cfg
}

func newTestCoordinator(conn interfaces.RelayedConn, role types.Role, self []types.Multiaddr, cfg *Config, clk clock.Clock, sched DialScheduler) *coordinator {
	return newCoordinator(coordinatorParams{
		id:        "test-" + role.String(),
		conn:      conn,
		role:      role,
		selfAddrs: self,
		cfg:       cfg,
		clock:     clk,
		scheduler: sched,
	})
}

func runAsync(ctx context.Context, c *coordinator) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		ch <- c.run(ctx)
	}()
	return ch
}

func awaitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("等待打洞结果超时")
		return Outcome{}
	}
}

// driveClock 以 step 推进 mock 时钟，直到 done 关闭或推进 max 次
func driveClock(clk *clock.Mock, step time.Duration, max int, done <-chan struct{}) bool {
	for i := 0; i < max; i++ {
		select {
		case <-done:
			return true
		default:
		}
		clk.Add(step)
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              脚本化对端
// ============================================================================

// scriptedPeer 在中继连接另一端手工收发协议消息
type scriptedPeer struct {
	stream interfaces.Stream
	r      *pb.Reader
	w      *pb.Writer
}

func openScripted(t *testing.T, conn *mocks.PipeConn) *scriptedPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := conn.OpenStream(ctx, protocolids.SysHolepunch)
	require.NoError(t, err)
	return &scriptedPeer{stream: s, r: pb.NewReader(s), w: pb.NewWriter(s)}
}

func acceptScripted(t *testing.T, conn *mocks.PipeConn) *scriptedPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := conn.AcceptStream(ctx, protocolids.SysHolepunch)
	require.NoError(t, err)
	return &scriptedPeer{stream: s, r: pb.NewReader(s), w: pb.NewWriter(s)}
}

func (p *scriptedPeer) send(t *testing.T, m *pb.HolePunch) {
	t.Helper()
	require.NoError(t, p.w.WriteMsg(m))
}

func (p *scriptedPeer) expect(t *testing.T, want pb.Type) *pb.HolePunch {
	t.Helper()
	m, err := p.r.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, want, m.Type)
	return m
}

func waitState(t *testing.T, c *coordinator, want State) {
	t.Helper()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return c.State() == want
	}, "等待状态 "+want.String())
}

func connectMsg(addrs []types.Multiaddr) *pb.HolePunch {
	return pb.NewConnect(types.MultiaddrsToBytes(addrs))
}
