// Package interfaces 定义 go-dcutr 的公共接口
//
// 打洞模块只编排"何时向哪些地址拨号"，其余能力都由外部协作方提供，
// 本包定义这些协作方的边界：
//
//   - host.go      - Stream、AddrSource（本地可分享地址）
//   - relay.go     - RelayedConn、RelayNotifier、RelayNotifiee（中继连接生命周期）
//   - transport.go - Dialer、DirectConn（直连拨号与直连句柄）
//   - nat.go       - HolePuncher（对上暴露的打洞服务）
//
// 时钟与定时器协作方直接使用 github.com/benbjohnson/clock.Clock。
package interfaces
