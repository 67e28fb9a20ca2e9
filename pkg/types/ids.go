package types

import "errors"

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 身份子系统负责生成与校验，本模块只把它当作不透明字符串。
type PeerID string

// EmptyPeerID 空节点ID
var EmptyPeerID PeerID

// ErrEmptyPeerID 空节点ID错误
var ErrEmptyPeerID = errors.New("empty peer ID")

// ParsePeerID 从字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrEmptyPeerID
	}
	return PeerID(s), nil
}

// String 返回 PeerID 字符串
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：前 8 个字符 + "..." + 后 3 个字符，用于日志。
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) <= 11 {
		return s
	}
	return s[:8] + "..." + s[len(s)-3:]
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
// 格式: /dep2p/{scope}/{name}/{version}
type ProtocolID string

// String 返回协议ID字符串
func (p ProtocolID) String() string {
	return string(p)
}

// IsEmpty 检查协议 ID 是否为空
func (p ProtocolID) IsEmpty() bool {
	return p == ""
}
