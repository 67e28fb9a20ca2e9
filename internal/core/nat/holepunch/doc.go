// Package holepunch 实现 DCUtR (Direct Connection Upgrade through Relay) 打洞协议
//
// 两个位于 NAT 后的节点已经通过中继电路互通时，holepunch 利用这条中继连接
// 协调双方在同一时刻互相拨号，使各自 NAT 上新建的出站映射恰好放行对方的入站包，
// 从而把中继连接升级为直连。
//
// # 协调流程
//
//	Initiator                              Responder
//	   |---- CONNECT(本端地址) ---------------->|   记录发送时刻 t0
//	   |<--- CONNECT(对端地址) -----------------|
//	   |   RTT = now - t0                       |
//	   |---- SYNC ----------------------------->|
//	   |   等待 RTT/2                           |   收到 SYNC 立即拨号
//	   |   开始拨号                             |
//
// RTT/2 近似 SYNC 的单程传输时间，双方因此在大致相同的真实时刻开始拨号
// （simultaneous open）。
//
// # 组件
//
//   - coordinator: 单条中继连接上的状态机，每条中继连接同时最多一个
//   - Registry: 准入控制（全局并发上限、单节点并发上限、失败冷却）
//   - Service: 编排器，监听中继连接、驱动协调器、调用外部拨号器、上报结果
//
// 消息编解码见 pkg/lib/proto/holepunch。
//
// # 并发模型
//
// 每个协调器独立运行在自己的 goroutine 中，跨协调器共享的状态只有 Registry。
// 所有依赖远端行为的等待点都有超时；中继关闭或服务关闭时协调器立即退出，
// 并在返回前释放准入名额、停止定时器、回收读协程。
package holepunch

import (
	"github.com/dep2p/go-dcutr/pkg/lib/log"
)

var logger = log.Logger("core/holepunch")
