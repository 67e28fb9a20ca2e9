package interfaces

import (
	"context"

	"github.com/dep2p/go-dcutr/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// RelayedConn 接口 - 经中继的间接连接
// ════════════════════════════════════════════════════════════════════════════

// RelayedConn 经中继电路建立的连接
//
// 中继电路协议本身不在本模块范围内，这里只使用它打开/接受控制流
// 以及感知连接关闭。
type RelayedConn interface {
	// RemotePeer 返回对端节点 ID
	RemotePeer() types.PeerID

	// OpenStream 在中继连接上打开指定协议的流（Initiator 使用）
	OpenStream(ctx context.Context, protocol types.ProtocolID) (Stream, error)

	// AcceptStream 等待对端打开的指定协议的流（Responder 使用）
	AcceptStream(ctx context.Context, protocol types.ProtocolID) (Stream, error)

	// Done 返回在中继连接关闭时关闭的通道
	Done() <-chan struct{}
}

// ════════════════════════════════════════════════════════════════════════════
// RelayNotifier 接口 - 中继连接事件
// ════════════════════════════════════════════════════════════════════════════

// RelayNotifiee 接收中继连接事件
type RelayNotifiee interface {
	// RelayConnected 中继连接已建立
	//
	// role 为角色提示：本端主动通过中继连向对方时为 RoleInitiator。
	RelayConnected(conn RelayedConn, role types.Role)

	// RelayDisconnected 中继连接已关闭
	RelayDisconnected(conn RelayedConn)
}

// RelayNotifier 中继连接事件源
type RelayNotifier interface {
	// Notify 注册事件接收者
	Notify(n RelayNotifiee)

	// StopNotify 注销事件接收者
	StopNotify(n RelayNotifiee)
}
