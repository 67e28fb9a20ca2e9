// Package testutil 提供测试辅助工具
package testutil

import (
	"github.com/dep2p/go-dcutr/pkg/types"
)

// 测试数据固件
//
// 提供测试中常用的节点与地址，确保测试一致性。

const (
	// PeerA 测试节点 A
	PeerA types.PeerID = "12D3KooWTestPeerAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	// PeerB 测试节点 B
	PeerB types.PeerID = "12D3KooWTestPeerBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"

	// PeerC 测试节点 C
	PeerC types.PeerID = "12D3KooWTestPeerCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

// AddrsA 节点 A 的打洞地址
func AddrsA() []types.Multiaddr {
	return []types.Multiaddr{
		"/ip4/203.0.113.10/udp/4001/quic-v1",
		"/ip4/203.0.113.10/tcp/4001",
	}
}

// AddrsB 节点 B 的打洞地址
func AddrsB() []types.Multiaddr {
	return []types.Multiaddr{
		"/ip4/198.51.100.20/udp/4001/quic-v1",
		"/ip4/198.51.100.20/tcp/4001",
	}
}
