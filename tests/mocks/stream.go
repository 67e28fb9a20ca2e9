package mocks

import (
	"io"
	"sync"
)

// MockStream 模拟 Stream 接口实现
type MockStream struct {
	mu sync.Mutex

	// 基本属性
	ReadData  []byte
	WriteData []byte
	Closed    bool
	Resetted  bool

	// 可覆盖的方法
	ReadFunc  func(p []byte) (n int, err error)
	WriteFunc func(p []byte) (n int, err error)
	CloseFunc func() error
	ResetFunc func() error
}

// NewMockStream 创建 MockStream
func NewMockStream() *MockStream {
	return &MockStream{}
}

// NewMockStreamWithData 创建带有预置读数据的 MockStream
func NewMockStreamWithData(data []byte) *MockStream {
	return &MockStream{ReadData: data}
}

// Read 读取数据
func (m *MockStream) Read(p []byte) (n int, err error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

// Write 写入数据
func (m *MockStream) Write(p []byte) (n int, err error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteData = append(m.WriteData, p...)
	return len(p), nil
}

// Close 关闭流
func (m *MockStream) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Reset 重置流
func (m *MockStream) Reset() error {
	if m.ResetFunc != nil {
		return m.ResetFunc()
	}
	m.mu.Lock()
	m.Resetted = true
	m.mu.Unlock()
	return nil
}

// Written 返回已写入数据的副本
func (m *MockStream) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.WriteData...)
}
