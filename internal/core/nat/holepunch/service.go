package holepunch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// ============================================================================
//                              Service
// ============================================================================

// Service 打洞编排服务
//
// 为每条新的中继连接启动一个协调器，向外部拨号器发出拨号指令，
// 把入站直连投递给对应的协调器，并向订阅者上报每次尝试的结果。
// 失败后不会自动重试，重试策略由调用方决定。
type Service struct {
	config   *Config
	clock    clock.Clock
	dialer   interfaces.Dialer
	addrs    interfaces.AddrSource
	notifier interfaces.RelayNotifier
	registry *Registry
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conns   map[interfaces.RelayedConn]*relayedConn
	started bool
	closed  bool

	subMu      sync.RWMutex
	subs       map[*subscription]struct{}
	subsClosed bool
}

// relayedConn 被跟踪的中继连接
type relayedConn struct {
	conn   interfaces.RelayedConn
	role   types.Role
	active *attempt // 同一条中继连接同时最多一个
}

// attempt 进行中的尝试
type attempt struct {
	id        string
	rc        *relayedConn
	coord     *coordinator
	admission *Admission
	cancel    context.CancelCauseFunc
	started   time.Time

	done    chan struct{}
	outcome Outcome // done 关闭后只读
}

// AttemptInfo 进行中尝试的快照
type AttemptInfo struct {
	ID      string
	Peer    types.PeerID
	Role    types.Role
	State   State
	Started time.Time
}

type subscription struct {
	ch   chan Outcome
	done chan struct{}
	once sync.Once
}

var (
	_ interfaces.HolePuncher   = (*Service)(nil)
	_ interfaces.RelayNotifiee = (*Service)(nil)
	_ DialScheduler            = (*Service)(nil)
)

// ServiceOption 服务选项
type ServiceOption func(*Service)

// WithClock 设置时钟（测试中注入 clock.Mock）
func WithClock(clk clock.Clock) ServiceOption {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRelayNotifier 设置中继连接事件源，Start 时注册
func WithRelayNotifier(n interfaces.RelayNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// NewService 创建打洞服务
func NewService(config *Config, dialer interfaces.Dialer, addrs interfaces.AddrSource, opts ...ServiceOption) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("holepunch: dialer is required")
	}
	if addrs == nil {
		addrs = interfaces.AddrSourceFunc(func() []types.Multiaddr { return nil })
	}

	s := &Service{
		config:  config,
		clock:   clock.New(),
		dialer:  dialer,
		addrs:   addrs,
		metrics: NopMetrics(),
		conns:   make(map[interfaces.RelayedConn]*relayedConn),
		subs:    make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	registry, err := NewRegistry(config, s.clock)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	return s, nil
}

// Start 启动服务并注册中继连接事件
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Notify(s)
	}

	logger.Info("打洞服务已启动",
		"maxConcurrent", s.config.MaxConcurrentAttempts,
		"maxPerPeer", s.config.MaxAttemptsPerPeer,
		"cooldown", s.config.FailureCooldown)
	return nil
}

// Close 关闭服务
//
// 进行中的尝试以 RelayConnectionClosed 结束；返回时所有内部 goroutine 已退出，
// 所有订阅通道已关闭。
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if started && s.notifier != nil {
		s.notifier.StopNotify(s)
	}

	s.cancel(ErrServiceClosed)
	s.wg.Wait()

	s.subMu.Lock()
	s.subsClosed = true
	for sub := range s.subs {
		close(sub.ch)
		delete(s.subs, sub)
	}
	s.subMu.Unlock()

	logger.Info("打洞服务已关闭", "stats", s.registry.Stats())
	return nil
}

// Registry 返回准入控制器
func (s *Service) Registry() *Registry {
	return s.registry
}

// ============================================================================
//                              中继连接事件
// ============================================================================

// RelayConnected 实现 RelayNotifiee：为新的中继连接启动一次尝试
func (s *Service) RelayConnected(conn interfaces.RelayedConn, role types.Role) {
	if !role.IsValid() {
		logger.Warn("忽略角色无效的中继连接",
			"peer", conn.RemotePeer().ShortString(),
			"role", role,
			"err", ErrInvalidRole)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.conns[conn]; ok {
		s.mu.Unlock()
		return
	}
	rc := &relayedConn{conn: conn, role: role}
	s.conns[conn] = rc
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(rc)

	logger.Debug("中继连接已建立", "peer", conn.RemotePeer().ShortString(), "role", role)

	if _, err := s.startAttempt(rc); err != nil {
		logger.Debug("未启动打洞", "peer", conn.RemotePeer().ShortString(), "err", err)
	}
}

// RelayDisconnected 实现 RelayNotifiee：取消该连接上的尝试
func (s *Service) RelayDisconnected(conn interfaces.RelayedConn) {
	s.mu.Lock()
	rc, ok := s.conns[conn]
	if ok {
		delete(s.conns, conn)
	}
	var active *attempt
	if rc != nil {
		active = rc.active
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	logger.Debug("中继连接已关闭", "peer", conn.RemotePeer().ShortString())
	if active != nil {
		active.cancel(ErrRelayConnectionClosed)
	}
}

// watch 在连接关闭时自行注销，不依赖事件源的 RelayDisconnected
func (s *Service) watch(rc *relayedConn) {
	defer s.wg.Done()
	select {
	case <-rc.conn.Done():
		s.RelayDisconnected(rc.conn)
	case <-s.ctx.Done():
	}
}

// DirectConnected 把连接层收到的直连投递给该节点的进行中尝试
//
// 没有进行中尝试时直连与打洞无关，不做处理。本方法不会关闭 conn。
func (s *Service) DirectConnected(conn interfaces.DirectConn) {
	peer := conn.RemotePeer()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, rc := range s.conns {
		a := rc.active
		if a == nil || rc.conn.RemotePeer() != peer {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if a.coord.offerInbound(conn) {
				logger.Debug("入站直连已投递", "attempt", a.id, "peer", peer.ShortString())
			}
		}()
	}
}

// ScheduleDial 实现 DialScheduler
func (s *Service) ScheduleDial(ctx context.Context, req DialRequest, report func(interfaces.DirectConn, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := s.dialer.Dial(ctx, req.Peer, req.Addrs)
		s.metrics.dialFinished(err)
		report(conn, err)
	}()
}

// ============================================================================
//                              尝试管理
// ============================================================================

// startAttempt 在 rc 上启动一次尝试
//
// 已有进行中尝试时返回该尝试与 ErrAttemptInProgress。
func (s *Service) startAttempt(rc *relayedConn) (*attempt, error) {
	peer := rc.conn.RemotePeer()
	selfAddrs := s.addrs.HolePunchAddrs()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if s.conns[rc.conn] != rc {
		s.mu.Unlock()
		return nil, ErrNoRelayedConn
	}
	if rc.active != nil {
		a := rc.active
		s.mu.Unlock()
		return a, ErrAttemptInProgress
	}

	admission, err := s.registry.Admit(peer)
	if err != nil {
		// 拒绝结果异步投递，不阻塞中继事件回调
		s.wg.Add(1)
		s.mu.Unlock()
		s.metrics.admissionRejected(ReasonOf(err))
		logger.Debug("打洞准入被拒绝", "peer", peer.ShortString(), "reason", ReasonOf(err))
		out := rejectedOutcome(peer, rc.role, err, s.clock.Now())
		go func() {
			defer s.wg.Done()
			s.emit(out)
		}()
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(s.ctx)
	a := &attempt{
		id:        uuid.NewString(),
		rc:        rc,
		admission: admission,
		cancel:    cancel,
		started:   s.clock.Now(),
		done:      make(chan struct{}),
	}
	a.coord = newCoordinator(coordinatorParams{
		id:        a.id,
		conn:      rc.conn,
		role:      rc.role,
		selfAddrs: selfAddrs,
		cfg:       s.config,
		clock:     s.clock,
		scheduler: s,
	})
	rc.active = a
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.attemptStarted()
	logger.Debug("开始打洞", "attempt", a.id, "peer", peer.ShortString(), "role", rc.role)

	go s.runAttempt(ctx, a)
	return a, nil
}

func (s *Service) runAttempt(ctx context.Context, a *attempt) {
	defer s.wg.Done()

	out := a.coord.run(ctx)
	a.cancel(nil)
	a.admission.Release(out.State)

	s.mu.Lock()
	if a.rc.active == a {
		a.rc.active = nil
	}
	s.mu.Unlock()

	a.outcome = out
	close(a.done)

	s.metrics.attemptFinished(out)
	if out.Succeeded() {
		logger.Info("打洞成功",
			"attempt", out.AttemptID,
			"peer", out.Peer.ShortString(),
			"role", out.Role,
			"addr", out.Conn.RemoteAddr(),
			"inbound", out.Inbound,
			"rtt", out.RTT,
			"duration", out.Duration)
	} else {
		logger.Debug("打洞失败",
			"attempt", out.AttemptID,
			"peer", out.Peer.ShortString(),
			"role", out.Role,
			"reason", out.Reason,
			"err", out.Err)
	}
	s.emit(out)
}

// DirectConnect 实现 HolePuncher：在到 peer 的中继连接上执行一次尝试并等待结果
//
// 该连接上已有尝试时等待其结果。ctx 只约束等待，不会取消共享的尝试。
func (s *Service) DirectConnect(ctx context.Context, peer types.PeerID) (interfaces.DirectConn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	rc := s.findConnLocked(peer)
	s.mu.Unlock()
	if rc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRelayedConn, peer.ShortString())
	}

	a, err := s.startAttempt(rc)
	if err != nil && a == nil {
		return nil, err
	}

	select {
	case <-a.done:
		if a.outcome.Succeeded() {
			return a.outcome.Conn, nil
		}
		return nil, a.outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// findConnLocked 优先返回已有进行中尝试的连接
func (s *Service) findConnLocked(peer types.PeerID) *relayedConn {
	var found *relayedConn
	for _, rc := range s.conns {
		if rc.conn.RemotePeer() != peer {
			continue
		}
		if rc.active != nil {
			return rc
		}
		if found == nil {
			found = rc
		}
	}
	return found
}

// IsActive 实现 HolePuncher
func (s *Service) IsActive(peer types.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rc := range s.conns {
		if rc.active != nil && rc.conn.RemotePeer() == peer {
			return true
		}
	}
	return false
}

// ActiveAttempts 返回进行中尝试的快照
func (s *Service) ActiveAttempts() []AttemptInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]AttemptInfo, 0, len(s.conns))
	for _, rc := range s.conns {
		a := rc.active
		if a == nil {
			continue
		}
		infos = append(infos, AttemptInfo{
			ID:      a.id,
			Peer:    rc.conn.RemotePeer(),
			Role:    rc.role,
			State:   a.coord.State(),
			Started: a.started,
		})
	}
	return infos
}

// ============================================================================
//                              结果订阅
// ============================================================================

// Subscribe 订阅尝试结果
//
// 返回的通道在服务关闭时关闭；调用 cancel 后不再接收新结果，
// 但通道本身不会被关闭。
//
// 投递是有背压的：缓冲区（Config.OutcomeBuffer）满时，结束的尝试会等待
// 订阅者读取，期间不释放 goroutine。不再读取的订阅者必须调用 cancel。
func (s *Service) Subscribe() (<-chan Outcome, func()) {
	sub := &subscription{
		ch:   make(chan Outcome, s.config.OutcomeBuffer),
		done: make(chan struct{}),
	}

	s.subMu.Lock()
	if s.subsClosed {
		s.subMu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			close(sub.done)
			s.subMu.Lock()
			delete(s.subs, sub)
			s.subMu.Unlock()
		})
	}
	return sub.ch, cancel
}

// emit 向所有订阅者投递结果，订阅者缓冲区满时阻塞直到服务关闭
func (s *Service) emit(out Outcome) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	if s.subsClosed {
		return
	}
	for sub := range s.subs {
		select {
		case sub.ch <- out:
		case <-sub.done:
		case <-s.ctx.Done():
			logger.Debug("服务关闭，丢弃打洞结果",
				"attempt", out.AttemptID,
				"peer", out.Peer.ShortString(),
				"state", out.State)
			return
		}
	}
}
