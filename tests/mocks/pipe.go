package mocks

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("mocks: connection closed")

	// ErrStreamReset 流已重置
	ErrStreamReset = errors.New("mocks: stream reset")

	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("mocks: stream closed")
)

// ============================================================================
//                              PipeConn
// ============================================================================

// PipeConn 内存中继连接的一端
type PipeConn struct {
	remote  types.PeerID
	clock   clock.Clock
	latency time.Duration

	peer     *PipeConn
	incoming chan *PipeStream
	shared   *pipeShared
}

type pipeShared struct {
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	streams []*PipeStream
}

var _ interfaces.RelayedConn = (*PipeConn)(nil)

// NewRelayPair 创建一对互通的内存中继连接
//
// 返回的第一个连接是 a 一侧（RemotePeer 为 b），第二个是 b 一侧。
// 每个方向写入的数据在 clk 前进 latency 后才对另一端可见。
func NewRelayPair(a, b types.PeerID, clk clock.Clock, latency time.Duration) (*PipeConn, *PipeConn) {
	if clk == nil {
		clk = clock.New()
	}
	shared := &pipeShared{done: make(chan struct{})}
	ca := &PipeConn{remote: b, clock: clk, latency: latency, incoming: make(chan *PipeStream, 8), shared: shared}
	cb := &PipeConn{remote: a, clock: clk, latency: latency, incoming: make(chan *PipeStream, 8), shared: shared}
	ca.peer, cb.peer = cb, ca
	return ca, cb
}

// RemotePeer 返回远端节点 ID
func (c *PipeConn) RemotePeer() types.PeerID {
	return c.remote
}

// OpenStream 打开流，对端通过 AcceptStream 接收
func (c *PipeConn) OpenStream(ctx context.Context, protocol types.ProtocolID) (interfaces.Stream, error) {
	local, remote := newPipeStreams(c.clock, c.latency, protocol)
	if !c.shared.track(local, remote) {
		return nil, ErrConnClosed
	}
	select {
	case c.peer.incoming <- remote:
		return local, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.shared.done:
		return nil, ErrConnClosed
	}
}

// AcceptStream 接受对端打开的流
func (c *PipeConn) AcceptStream(ctx context.Context, _ types.ProtocolID) (interfaces.Stream, error) {
	select {
	case s := <-c.incoming:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.shared.done:
		return nil, ErrConnClosed
	}
}

// Done 返回关闭通道
func (c *PipeConn) Done() <-chan struct{} {
	return c.shared.done
}

// Close 关闭连接（两端同时关闭），并重置其上的所有流
func (c *PipeConn) Close() error {
	c.shared.mu.Lock()
	if c.shared.closed {
		c.shared.mu.Unlock()
		return nil
	}
	c.shared.closed = true
	close(c.shared.done)
	streams := c.shared.streams
	c.shared.streams = nil
	c.shared.mu.Unlock()

	for _, s := range streams {
		_ = s.Reset()
	}
	return nil
}

func (s *pipeShared) track(streams ...*PipeStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.streams = append(s.streams, streams...)
	return true
}

// ============================================================================
//                              PipeStream
// ============================================================================

// PipeStream 内存流的一端
type PipeStream struct {
	Protocol types.ProtocolID

	clock   clock.Clock
	latency time.Duration
	in      *halfPipe
	out     *halfPipe
}

var _ interfaces.Stream = (*PipeStream)(nil)

func newPipeStreams(clk clock.Clock, latency time.Duration, protocol types.ProtocolID) (*PipeStream, *PipeStream) {
	ab := newHalfPipe(clk)
	ba := newHalfPipe(clk)
	return &PipeStream{Protocol: protocol, clock: clk, latency: latency, in: ba, out: ab},
		&PipeStream{Protocol: protocol, clock: clk, latency: latency, in: ab, out: ba}
}

// Read 读取对端写入且已经"到达"的数据
func (s *PipeStream) Read(p []byte) (int, error) {
	return s.in.read(p)
}

// Write 写入数据，对端在 latency 之后可见
func (s *PipeStream) Write(p []byte) (int, error) {
	if err := s.out.writable(); err != nil {
		return 0, err
	}
	s.deliver(chunk{data: append([]byte(nil), p...)})
	return len(p), nil
}

// Close 关闭流：对端在读完已发送数据后收到 io.EOF
func (s *PipeStream) Close() error {
	s.in.closeLocal()
	if s.out.closeWriter() {
		s.deliver(chunk{eof: true})
	}
	return nil
}

// Reset 重置流：本端读写立即失败，对端在读完已发送数据后收到错误
func (s *PipeStream) Reset() error {
	s.in.setReset()
	if s.out.closeWriter() {
		s.deliver(chunk{reset: true})
	}
	return nil
}

func (s *PipeStream) deliver(c chunk) {
	c.at = s.clock.Now().Add(s.latency)
	s.out.push(c)
	if s.latency <= 0 {
		s.out.signal()
		return
	}
	s.clock.AfterFunc(s.latency, s.out.signal)
}

type chunk struct {
	at    time.Time
	data  []byte
	eof   bool
	reset bool
}

// halfPipe 单方向的数据通道
type halfPipe struct {
	clock clock.Clock

	mu         sync.Mutex
	queue      []chunk
	pending    []byte
	eof        bool
	reset      bool
	closed     bool
	writerDone bool
	notify     chan struct{}
}

func newHalfPipe(clk clock.Clock) *halfPipe {
	return &halfPipe{clock: clk, notify: make(chan struct{}, 1)}
}

func (h *halfPipe) push(c chunk) {
	h.mu.Lock()
	h.queue = append(h.queue, c)
	h.mu.Unlock()
}

func (h *halfPipe) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *halfPipe) writable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reset || h.writerDone {
		return ErrStreamReset
	}
	return nil
}

// closeWriter 标记写端关闭，只有第一次调用返回 true
func (h *halfPipe) closeWriter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writerDone {
		return false
	}
	h.writerDone = true
	return true
}

func (h *halfPipe) setReset() {
	h.mu.Lock()
	h.reset = true
	h.mu.Unlock()
	h.signal()
}

func (h *halfPipe) closeLocal() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.signal()
}

func (h *halfPipe) read(p []byte) (int, error) {
	for {
		h.mu.Lock()
		switch {
		case h.reset:
			h.mu.Unlock()
			return 0, ErrStreamReset
		case h.closed:
			h.mu.Unlock()
			return 0, ErrStreamClosed
		case len(h.pending) > 0:
			n := copy(p, h.pending)
			h.pending = h.pending[n:]
			h.mu.Unlock()
			return n, nil
		case len(h.queue) > 0 && !h.queue[0].at.After(h.clock.Now()):
			c := h.queue[0]
			h.queue = h.queue[1:]
			switch {
			case c.reset:
				h.reset = true
			case c.eof:
				h.eof = true
			default:
				h.pending = c.data
			}
			h.mu.Unlock()
			continue
		case h.eof:
			h.mu.Unlock()
			return 0, io.EOF
		}
		h.mu.Unlock()
		<-h.notify
	}
}
