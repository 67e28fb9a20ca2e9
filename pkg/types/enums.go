package types

// ============================================================================
//                              Role - 打洞角色
// ============================================================================

// Role 打洞协调中的角色
//
// 由中继连接的建立方向决定：主动通过中继电路连向对方的一侧为 Initiator，
// 另一侧为 Responder。单次协调过程中角色固定，不重新协商。
type Role int

const (
	// RoleUnknown 未知角色
	RoleUnknown Role = iota
	// RoleInitiator 发起方：先发送 CONNECT，测量 RTT，发送 SYNC
	RoleInitiator
	// RoleResponder 响应方：回复 CONNECT，收到 SYNC 后立即拨号
	RoleResponder
)

// String 返回角色的字符串表示
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// IsValid 检查角色是否有效
func (r Role) IsValid() bool {
	return r == RoleInitiator || r == RoleResponder
}
