package holepunch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	pb "github.com/dep2p/go-dcutr/pkg/lib/proto/holepunch"
	"github.com/dep2p/go-dcutr/pkg/protocolids"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// ============================================================================
//                              拨号指令
// ============================================================================

// DialRequest 协调器发出的拨号指令
type DialRequest struct {
	AttemptID string
	Peer      types.PeerID
	Addrs     []types.Multiaddr
}

// DialScheduler 执行协调器发出的拨号指令
type DialScheduler interface {
	// ScheduleDial 异步拨号，完成后调用 report 回送结果
	//
	// ctx 在协调器结束时取消；report 可能阻塞到协调器接收结果或结束。
	ScheduleDial(ctx context.Context, req DialRequest, report func(interfaces.DirectConn, error))
}

// ============================================================================
//                              内部事件
// ============================================================================

var (
	// errShortCircuit 直连已建立，协调提前结束
	errShortCircuit = errors.New("holepunch: direct connection established")

	errNoPeerAddrs = errors.New("peer advertised no dialable addresses")
	errNilConn     = errors.New("dialer returned nil connection")
)

type directEvent struct {
	conn   interfaces.DirectConn
	dialed bool
}

type inboundMsg struct {
	msg *pb.HolePunch
	err error
}

type streamResult struct {
	stream interfaces.Stream
	err    error
}

type eventKind int

const (
	evMessage eventKind = iota
	evReadError
	evTimer
	evDirect
	evDialError
	evRelayClosed
	evDone
)

type event struct {
	kind   eventKind
	msg    *pb.HolePunch
	direct directEvent
	err    error
}

// ============================================================================
//                              coordinator
// ============================================================================

type coordinatorParams struct {
	id        string
	conn      interfaces.RelayedConn
	role      types.Role
	selfAddrs []types.Multiaddr
	cfg       *Config
	clock     clock.Clock
	scheduler DialScheduler
}

// coordinator 单条中继连接上的一次打洞尝试
//
// 状态只由 run 所在的 goroutine 修改；直连与拨号结果通过通道投递。
type coordinator struct {
	id        string
	conn      interfaces.RelayedConn
	peer      types.PeerID
	role      types.Role
	selfAddrs []types.Multiaddr
	cfg       *Config
	clock     clock.Clock
	scheduler DialScheduler

	state atomic.Int32

	runCtx     context.Context
	stream     interfaces.Stream
	writer     *pb.Writer
	opened     chan streamResult
	inbox      chan inboundMsg
	directCh   chan directEvent
	dialErrCh  chan error
	dialCancel context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup

	rtt       time.Duration
	peerAddrs []types.Multiaddr
	winner    directEvent
}

func newCoordinator(p coordinatorParams) *coordinator {
	return &coordinator{
		id:        p.id,
		conn:      p.conn,
		peer:      p.conn.RemotePeer(),
		role:      p.role,
		selfAddrs: p.selfAddrs,
		cfg:       p.cfg,
		clock:     p.clock,
		scheduler: p.scheduler,
		directCh:  make(chan directEvent),
		dialErrCh: make(chan error),
		done:      make(chan struct{}),
	}
}

// State 返回当前状态
func (c *coordinator) State() State {
	return State(c.state.Load())
}

func (c *coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		logger.Debug("打洞状态变更",
			"attempt", c.id,
			"peer", c.peer.ShortString(),
			"role", c.role,
			"from", old,
			"to", s)
	}
}

// run 执行协调直到终态
//
// 返回前已停止所有定时器、重置控制流并回收内部 goroutine。
func (c *coordinator) run(ctx context.Context) Outcome {
	started := c.clock.Now()
	c.runCtx = ctx

	err := c.execute(ctx)
	if errors.Is(err, errShortCircuit) {
		err = nil
	}
	c.teardown()

	out := Outcome{
		AttemptID: c.id,
		Peer:      c.peer,
		Role:      c.role,
		Admitted:  true,
		RTT:       c.rtt,
		Started:   started,
		Duration:  c.clock.Since(started),
	}
	if err != nil {
		c.setState(StateFailed)
		out.State = StateFailed
		out.Reason = ReasonOf(err)
		out.Err = err
		return out
	}

	c.setState(StateSucceeded)
	out.State = StateSucceeded
	out.Conn = c.winner.conn
	out.Inbound = !c.winner.dialed
	return out
}

func (c *coordinator) execute(ctx context.Context) error {
	if err := c.exchangeConnect(ctx); err != nil {
		return err
	}

	if c.role == types.RoleInitiator {
		if err := c.sendSync(ctx); err != nil {
			return err
		}
		c.setState(StateWaitingToSync)
		if err := c.sleep(ctx, c.rtt/2); err != nil {
			return err
		}
	} else if err := c.awaitSync(ctx); err != nil {
		return err
	}

	return c.dial(ctx)
}

// exchangeConnect 建立控制流并交换 CONNECT
func (c *coordinator) exchangeConnect(ctx context.Context) error {
	c.setState(StateAwaitingPeerConnect)

	phaseCtx, cancel := c.clock.WithTimeout(ctx, c.cfg.PeerConnectTimeout)
	defer cancel()

	if err := c.establishStream(phaseCtx); err != nil {
		return err
	}

	connect := pb.NewConnect(types.MultiaddrsToBytes(c.selfAddrs))

	var (
		msg *pb.HolePunch
		err error
	)
	if c.role == types.RoleInitiator {
		sentAt := c.clock.Now()
		if err = c.send(phaseCtx, connect, ReasonPeerConnectTimeout); err != nil {
			return err
		}
		if msg, err = c.awaitMessage(phaseCtx, pb.Type_CONNECT, ReasonPeerConnectTimeout); err != nil {
			return err
		}
		// RTT 只测量一次
		c.rtt = c.clock.Since(sentAt)
	} else {
		if msg, err = c.awaitMessage(phaseCtx, pb.Type_CONNECT, ReasonPeerConnectTimeout); err != nil {
			return err
		}
		if err = c.send(phaseCtx, connect, ReasonPeerConnectTimeout); err != nil {
			return err
		}
	}

	c.peerAddrs = c.filterAddrs(types.MultiaddrsFromBytes(msg.ObsAddrs))
	c.setState(StateMeasuringRtt)

	logger.Debug("已交换 CONNECT",
		"attempt", c.id,
		"peer", c.peer.ShortString(),
		"role", c.role,
		"peerAddrs", len(c.peerAddrs),
		"rtt", c.rtt)
	return nil
}

func (c *coordinator) sendSync(ctx context.Context) error {
	phaseCtx, cancel := c.clock.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()
	return c.send(phaseCtx, pb.NewSync(), ReasonSyncTimeout)
}

func (c *coordinator) awaitSync(ctx context.Context) error {
	phaseCtx, cancel := c.clock.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()
	_, err := c.awaitMessage(phaseCtx, pb.Type_SYNC, ReasonSyncTimeout)
	return err
}

// dial 发出拨号指令并等待第一个直连
func (c *coordinator) dial(ctx context.Context) error {
	c.setState(StateDialing)

	phaseCtx, cancel := c.clock.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	var dialErr error
	if len(c.peerAddrs) > 0 {
		dialCtx, dialCancel := context.WithCancel(ctx)
		c.dialCancel = dialCancel
		logger.Debug("开始拨号",
			"attempt", c.id,
			"peer", c.peer.ShortString(),
			"role", c.role,
			"addrs", types.MultiaddrsToStrings(c.peerAddrs))
		c.scheduler.ScheduleDial(dialCtx, DialRequest{
			AttemptID: c.id,
			Peer:      c.peer,
			Addrs:     c.peerAddrs,
		}, c.reportDial)
	} else {
		// 对方没有可拨地址时仍可能由对方拨入
		logger.Debug("对方没有可拨地址，等待入站直连",
			"attempt", c.id,
			"peer", c.peer.ShortString())
		dialErr = errNoPeerAddrs
	}

	for {
		ev := c.next(phaseCtx, nil)
		switch ev.kind {
		case evDirect:
			c.winner = ev.direct
			return nil
		case evDialError:
			dialErr = multierr.Append(dialErr, ev.err)
		case evDone:
			return c.ctxFailure(ReasonDialTimeout, dialErr)
		default:
			if err := c.handle(ev, ReasonDialTimeout); err != nil {
				return err
			}
		}
	}
}

// ============================================================================
//                              控制流
// ============================================================================

// establishStream 打开（Initiator）或接受（Responder）控制流
func (c *coordinator) establishStream(ctx context.Context) error {
	c.opened = make(chan streamResult, 1)
	c.wg.Add(1)
	go func(opened chan<- streamResult) {
		defer c.wg.Done()
		var r streamResult
		if c.role == types.RoleInitiator {
			r.stream, r.err = c.conn.OpenStream(ctx, protocolids.SysHolepunch)
		} else {
			r.stream, r.err = c.conn.AcceptStream(ctx, protocolids.SysHolepunch)
		}
		opened <- r
	}(c.opened)

	select {
	case r := <-c.opened:
		if r.err != nil {
			if ctx.Err() != nil {
				return c.ctxFailure(ReasonPeerConnectTimeout, r.err)
			}
			return c.fail(ReasonRelayConnectionClosed, fmt.Errorf("open stream: %w", r.err))
		}
		c.stream = r.stream
		c.writer = pb.NewWriter(r.stream)
		c.startReader()
		return nil
	case d := <-c.directCh:
		c.winner = d
		return errShortCircuit
	case <-c.conn.Done():
		return c.fail(ReasonRelayConnectionClosed, nil)
	case <-ctx.Done():
		return c.ctxFailure(ReasonPeerConnectTimeout, nil)
	}
}

func (c *coordinator) startReader() {
	inbox := make(chan inboundMsg)
	c.inbox = inbox
	reader := pb.NewReader(c.stream)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			msg, err := reader.ReadMsg()
			select {
			case inbox <- inboundMsg{msg: msg, err: err}:
			case <-c.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// send 写入一条消息，ctx 结束时重置流以中断阻塞的写
func (c *coordinator) send(ctx context.Context, msg *pb.HolePunch, onTimeout Reason) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.stream.Reset()
	})
	err := c.writer.WriteMsg(msg)
	if !stop() {
		return c.ctxFailure(onTimeout, err)
	}
	if err != nil {
		return c.fail(ReasonRelayConnectionClosed, fmt.Errorf("write %s: %w", msg.Type, err))
	}
	return nil
}

// ============================================================================
//                              事件循环
// ============================================================================

// next 等待下一个事件；timer 为 nil 时不等待定时器
func (c *coordinator) next(ctx context.Context, timer <-chan time.Time) event {
	select {
	case in := <-c.inbox:
		if in.err != nil {
			return event{kind: evReadError, err: in.err}
		}
		return event{kind: evMessage, msg: in.msg}
	case <-timer:
		return event{kind: evTimer}
	case d := <-c.directCh:
		return event{kind: evDirect, direct: d}
	case err := <-c.dialErrCh:
		return event{kind: evDialError, err: err}
	case <-c.conn.Done():
		return event{kind: evRelayClosed}
	case <-ctx.Done():
		return event{kind: evDone}
	}
}

// handle 处理当前阶段未显式等待的事件，返回非 nil 表示协调结束
func (c *coordinator) handle(ev event, onTimeout Reason) error {
	switch ev.kind {
	case evMessage:
		return c.fail(ReasonProtocolViolation, fmt.Errorf("unexpected %s", ev.msg.Type))
	case evReadError:
		return c.readFailure(ev.err)
	case evDirect:
		c.winner = ev.direct
		return errShortCircuit
	case evDialError:
		logger.Debug("拨号失败", "attempt", c.id, "peer", c.peer.ShortString(), "err", ev.err)
		return nil
	case evRelayClosed:
		return c.fail(ReasonRelayConnectionClosed, nil)
	case evDone:
		return c.ctxFailure(onTimeout, nil)
	default:
		return nil
	}
}

// readFailure 处理读错误
//
// 握手完成（Initiator 已发送 SYNC 或 Responder 已收到 SYNC）之后
// 控制流正常关闭不影响拨号；此前任何读错误都意味着协调无法继续。
func (c *coordinator) readFailure(err error) error {
	if errors.Is(err, pb.ErrMalformedMessage) {
		return c.fail(ReasonMalformedMessage, err)
	}
	if c.State() >= StateWaitingToSync {
		c.inbox = nil
		return nil
	}
	return c.fail(ReasonRelayConnectionClosed, fmt.Errorf("read: %w", err))
}

func (c *coordinator) awaitMessage(ctx context.Context, want pb.Type, onTimeout Reason) (*pb.HolePunch, error) {
	for {
		ev := c.next(ctx, nil)
		if ev.kind == evMessage {
			if ev.msg.Type != want {
				return nil, c.fail(ReasonProtocolViolation, fmt.Errorf("expected %s, got %s", want, ev.msg.Type))
			}
			return ev.msg, nil
		}
		if err := c.handle(ev, onTimeout); err != nil {
			return nil, err
		}
	}
}

// sleep 等待 d，期间仍处理直连、中继关闭与违规消息
func (c *coordinator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()

	for {
		ev := c.next(ctx, timer.C)
		if ev.kind == evTimer {
			return nil
		}
		if err := c.handle(ev, ReasonSyncTimeout); err != nil {
			return err
		}
	}
}

// ============================================================================
//                              直连投递
// ============================================================================

// reportDial 接收拨号结果，落败的重复直连由本端关闭
func (c *coordinator) reportDial(conn interfaces.DirectConn, err error) {
	if err == nil && conn == nil {
		err = errNilConn
	}
	if err != nil {
		select {
		case c.dialErrCh <- err:
		case <-c.done:
		}
		return
	}
	if !c.offer(directEvent{conn: conn, dialed: true}) {
		logger.Debug("关闭重复直连",
			"attempt", c.id,
			"peer", c.peer.ShortString(),
			"addr", conn.RemoteAddr())
		_ = conn.Close()
	}
}

// offerInbound 投递对方拨入的直连，协调器已结束时返回 false
func (c *coordinator) offerInbound(conn interfaces.DirectConn) bool {
	return c.offer(directEvent{conn: conn})
}

func (c *coordinator) offer(d directEvent) bool {
	select {
	case c.directCh <- d:
		return true
	case <-c.done:
		return false
	}
}

// ============================================================================
//                              辅助
// ============================================================================

// teardown 结束协调：取消拨号、重置控制流并等待内部 goroutine 退出
func (c *coordinator) teardown() {
	close(c.done)
	if c.dialCancel != nil {
		c.dialCancel()
	}
	// 控制流只用于协调，结束时直接重置
	if c.stream != nil {
		_ = c.stream.Reset()
	}
	c.wg.Wait()

	if c.opened != nil {
		select {
		case r := <-c.opened:
			if r.stream != nil {
				_ = r.stream.Reset()
			}
		default:
		}
	}
}

// filterAddrs 去掉本端地址并去重，保持原有顺序
func (c *coordinator) filterAddrs(addrs []types.Multiaddr) []types.Multiaddr {
	self := make(map[types.Multiaddr]struct{}, len(c.selfAddrs))
	for _, a := range c.selfAddrs {
		self[a] = struct{}{}
	}

	seen := make(map[types.Multiaddr]struct{}, len(addrs))
	out := make([]types.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if a.IsEmpty() {
			continue
		}
		if _, ok := self[a]; ok {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (c *coordinator) fail(reason Reason, cause error) error {
	return &AttemptError{
		Peer:   c.peer,
		Role:   c.role,
		State:  c.State(),
		Reason: reason,
		Err:    cause,
	}
}

// ctxFailure 区分阶段超时与上层取消（中继断开或服务关闭）
func (c *coordinator) ctxFailure(onTimeout Reason, cause error) error {
	if c.runCtx.Err() != nil {
		parent := context.Cause(c.runCtx)
		if errors.Is(parent, ErrRelayConnectionClosed) {
			parent = nil
		}
		return c.fail(ReasonRelayConnectionClosed, multierr.Append(parent, cause))
	}
	return c.fail(onTimeout, cause)
}
