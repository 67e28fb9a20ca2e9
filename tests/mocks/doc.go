// Package mocks 提供统一的测试 Mock 实现
//
// # Mock 列表
//
//   - MockStream: 模拟 interfaces.Stream
//   - MockRelayedConn: 模拟 interfaces.RelayedConn
//   - MockDirectConn: 模拟 interfaces.DirectConn
//   - MockDialer: 模拟 interfaces.Dialer，记录拨号调用
//   - MockRelayNotifier: 模拟 interfaces.RelayNotifier
//   - PipeConn / PipeStream: 内存中继连接对，支持按时钟注入单向延迟
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
//
// # 使用示例
//
//	clk := clock.NewMock()
//	a, b := mocks.NewRelayPair("peer-a", "peer-b", clk, 100*time.Millisecond)
//	// a.RemotePeer() == "peer-b"，a 上写入的数据在 clk 前进 100ms 后才能在 b 上读到
package mocks
