package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// ErrNotImplemented 未注入行为的方法返回此错误
var ErrNotImplemented = errors.New("mocks: not implemented")

// MockRelayedConn 模拟 RelayedConn 接口实现
type MockRelayedConn struct {
	// 基本属性
	RemotePeerID types.PeerID

	// 可覆盖的方法
	OpenStreamFunc   func(ctx context.Context, protocol types.ProtocolID) (interfaces.Stream, error)
	AcceptStreamFunc func(ctx context.Context, protocol types.ProtocolID) (interfaces.Stream, error)

	// 调用记录
	OpenStreamCalls   int
	AcceptStreamCalls int

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewMockRelayedConn 创建 MockRelayedConn
func NewMockRelayedConn(remote types.PeerID) *MockRelayedConn {
	return &MockRelayedConn{
		RemotePeerID: remote,
		done:         make(chan struct{}),
	}
}

// RemotePeer 返回远端节点 ID
func (m *MockRelayedConn) RemotePeer() types.PeerID {
	return m.RemotePeerID
}

// OpenStream 打开流
func (m *MockRelayedConn) OpenStream(ctx context.Context, protocol types.ProtocolID) (interfaces.Stream, error) {
	m.mu.Lock()
	m.OpenStreamCalls++
	m.mu.Unlock()
	if m.OpenStreamFunc != nil {
		return m.OpenStreamFunc(ctx, protocol)
	}
	return nil, ErrNotImplemented
}

// AcceptStream 接受流；未注入行为时阻塞到 ctx 结束或连接关闭
func (m *MockRelayedConn) AcceptStream(ctx context.Context, protocol types.ProtocolID) (interfaces.Stream, error) {
	m.mu.Lock()
	m.AcceptStreamCalls++
	m.mu.Unlock()
	if m.AcceptStreamFunc != nil {
		return m.AcceptStreamFunc(ctx, protocol)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.Done():
		return nil, ErrConnClosed
	}
}

// Done 返回关闭通道
func (m *MockRelayedConn) Done() <-chan struct{} {
	return m.doneCh()
}

// Close 关闭连接
func (m *MockRelayedConn) Close() error {
	done := m.doneCh()
	m.closeOnce.Do(func() {
		close(done)
	})
	return nil
}

func (m *MockRelayedConn) doneCh() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		m.done = make(chan struct{})
	}
	return m.done
}
