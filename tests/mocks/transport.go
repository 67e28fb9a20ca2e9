package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// MockDirectConn 模拟 DirectConn 接口实现
type MockDirectConn struct {
	// 基本属性
	RemotePeerID types.PeerID
	Addr         types.Multiaddr

	// 可覆盖的方法
	CloseFunc func() error

	// 调用记录
	closeCalls atomic.Int32
}

// NewMockDirectConn 创建 MockDirectConn
func NewMockDirectConn(remote types.PeerID, addr types.Multiaddr) *MockDirectConn {
	return &MockDirectConn{RemotePeerID: remote, Addr: addr}
}

// RemotePeer 返回远端节点 ID
func (m *MockDirectConn) RemotePeer() types.PeerID {
	return m.RemotePeerID
}

// RemoteAddr 返回远端地址
func (m *MockDirectConn) RemoteAddr() types.Multiaddr {
	return m.Addr
}

// Close 关闭连接
func (m *MockDirectConn) Close() error {
	m.closeCalls.Add(1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// IsClosed 是否被关闭过
func (m *MockDirectConn) IsClosed() bool {
	return m.closeCalls.Load() > 0
}

// CloseCalls 返回 Close 调用次数
func (m *MockDirectConn) CloseCalls() int {
	return int(m.closeCalls.Load())
}

// DialCall 拨号调用记录
type DialCall struct {
	Peer  types.PeerID
	Addrs []types.Multiaddr
	At    time.Time
}

// MockDialer 模拟 Dialer 接口实现
type MockDialer struct {
	// Clock 记录调用时间所用时钟，缺省为系统时钟
	Clock clock.Clock

	// 可覆盖的方法；未注入时阻塞到 ctx 结束
	DialFunc func(ctx context.Context, peer types.PeerID, addrs []types.Multiaddr) (interfaces.DirectConn, error)

	mu    sync.Mutex
	calls []DialCall
}

// Dial 拨号
func (m *MockDialer) Dial(ctx context.Context, peer types.PeerID, addrs []types.Multiaddr) (interfaces.DirectConn, error) {
	clk := m.Clock
	if clk == nil {
		clk = clock.New()
	}
	m.mu.Lock()
	m.calls = append(m.calls, DialCall{
		Peer:  peer,
		Addrs: append([]types.Multiaddr(nil), addrs...),
		At:    clk.Now(),
	})
	m.mu.Unlock()

	if m.DialFunc != nil {
		return m.DialFunc(ctx, peer, addrs)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// Calls 返回调用记录副本
func (m *MockDialer) Calls() []DialCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DialCall(nil), m.calls...)
}
