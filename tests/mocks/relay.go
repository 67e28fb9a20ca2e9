package mocks

import (
	"sync"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// MockRelayNotifier 模拟 RelayNotifier 接口实现
type MockRelayNotifier struct {
	mu        sync.Mutex
	notifiees []interfaces.RelayNotifiee
}

// Notify 注册事件接收者
func (m *MockRelayNotifier) Notify(n interfaces.RelayNotifiee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiees = append(m.notifiees, n)
}

// StopNotify 注销事件接收者
func (m *MockRelayNotifier) StopNotify(n interfaces.RelayNotifiee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.notifiees {
		if existing == n {
			m.notifiees = append(m.notifiees[:i], m.notifiees[i+1:]...)
			return
		}
	}
}

// Count 返回已注册的接收者数量
func (m *MockRelayNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifiees)
}

// Connected 向所有接收者广播 RelayConnected
func (m *MockRelayNotifier) Connected(conn interfaces.RelayedConn, role types.Role) {
	for _, n := range m.snapshot() {
		n.RelayConnected(conn, role)
	}
}

// Disconnected 向所有接收者广播 RelayDisconnected
func (m *MockRelayNotifier) Disconnected(conn interfaces.RelayedConn) {
	for _, n := range m.snapshot() {
		n.RelayDisconnected(conn)
	}
}

func (m *MockRelayNotifier) snapshot() []interfaces.RelayNotifiee {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interfaces.RelayNotifiee(nil), m.notifiees...)
}
