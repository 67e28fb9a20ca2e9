package interfaces

import (
	"context"

	"github.com/dep2p/go-dcutr/pkg/types"
)

// DirectConn 直连句柄
//
// 由外部拨号器或连接层产生；打洞模块只负责把它交给上层，
// 仅在它是本模块发起且落败的重复连接时关闭它。
type DirectConn interface {
	// RemotePeer 返回对端节点 ID
	RemotePeer() types.PeerID

	// RemoteAddr 返回建立直连所用的对端地址
	RemoteAddr() types.Multiaddr

	// Close 关闭连接
	Close() error
}

// Dialer 直连拨号器
//
// 拨号器可以在传输层自行重试，对打洞模块不可见。
type Dialer interface {
	// Dial 向 peer 的候选地址拨号，返回第一个成功的直连
	//
	// ctx 取消时必须尽快返回。
	Dial(ctx context.Context, peer types.PeerID, addrs []types.Multiaddr) (DirectConn, error)
}

// DialerFunc 函数适配器
type DialerFunc func(ctx context.Context, peer types.PeerID, addrs []types.Multiaddr) (DirectConn, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, peer types.PeerID, addrs []types.Multiaddr) (DirectConn, error) {
	return f(ctx, peer, addrs)
}
