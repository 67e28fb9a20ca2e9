package interfaces

import (
	"context"

	"github.com/dep2p/go-dcutr/pkg/types"
)

// HolePuncher 定义 NAT 打洞服务接口
//
// HolePuncher 实现 DCUtR (Direct Connection Upgrade through Relay) 协议：
//   - 两个节点都在 NAT 后，只能经中继通信
//   - 通过中继连接交换各自的候选地址
//   - 按 RTT 对齐时刻，双方同时向对方拨号，打通 NAT
type HolePuncher interface {
	// DirectConnect 在已有的中继连接上执行一次打洞尝试并等待结果
	//
	// 流程：
	//   1. 通过中继连接打开/接受打洞协议流
	//   2. 交换双方的候选地址（CONNECT 消息）
	//   3. 同步时机（SYNC 消息）
	//   4. 双方同时向对方地址发起连接
	//   5. 等待直连建立成功
	//
	// 失败时调用方应继续使用中继；是否以及何时重试由调用方决定。
	DirectConnect(ctx context.Context, peer types.PeerID) (DirectConn, error)

	// IsActive 检查是否正在对某节点进行打洞
	IsActive(peer types.PeerID) bool
}
