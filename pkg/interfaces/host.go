package interfaces

import (
	"github.com/dep2p/go-dcutr/pkg/types"
)

// Stream 中继连接上的控制流
//
// 打洞协议只需要顺序读写和异常关闭能力。
type Stream interface {
	// Read 从流中读取数据
	Read(p []byte) (n int, err error)

	// Write 向流中写入数据
	Write(p []byte) (n int, err error)

	// Close 关闭流
	Close() error

	// Reset 重置流（异常关闭）
	//
	// Reset 必须让阻塞中的 Read/Write 立即返回错误。
	Reset() error
}

// AddrSource 本地打洞地址来源
//
// 对应 Host 的 HolePunchAddrs：优先 STUN/UPnP/NAT-PMP 候选地址，
// 其次为已验证的直连地址。不得包含中继地址。
type AddrSource interface {
	// HolePunchAddrs 返回本地用于打洞的地址（按优先级排序）
	HolePunchAddrs() []types.Multiaddr
}

// AddrSourceFunc 函数适配器
type AddrSourceFunc func() []types.Multiaddr

// HolePunchAddrs 实现 AddrSource
func (f AddrSourceFunc) HolePunchAddrs() []types.Multiaddr {
	return f()
}
