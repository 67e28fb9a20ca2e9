package dcutr

import (
	"github.com/dep2p/go-dcutr/internal/core/nat/holepunch"
)

// ════════════════════════════════════════════════════════════════════════════
//                              结果与状态
// ════════════════════════════════════════════════════════════════════════════

// Outcome 一次打洞尝试的结果
type Outcome = holepunch.Outcome

// AttemptError 打洞失败的详细错误
type AttemptError = holepunch.AttemptError

// AttemptInfo 进行中尝试的快照
type AttemptInfo = holepunch.AttemptInfo

// RegistryStats 准入控制统计
type RegistryStats = holepunch.RegistryStats

// State 尝试状态
type State = holepunch.State

// Reason 失败原因
type Reason = holepunch.Reason

// 失败原因（从 holepunch 导出，方便使用）
const (
	ReasonPeerConnectTimeout        = holepunch.ReasonPeerConnectTimeout
	ReasonSyncTimeout               = holepunch.ReasonSyncTimeout
	ReasonDialTimeout               = holepunch.ReasonDialTimeout
	ReasonRelayConnectionClosed     = holepunch.ReasonRelayConnectionClosed
	ReasonMalformedMessage          = holepunch.ReasonMalformedMessage
	ReasonProtocolViolation         = holepunch.ReasonProtocolViolation
	ReasonTooManyConcurrentAttempts = holepunch.ReasonTooManyConcurrentAttempts
	ReasonPeerCooldown              = holepunch.ReasonPeerCooldown
)

// 失败原因对应的哨兵错误，可配合 errors.Is 使用
var (
	ErrPeerConnectTimeout        = holepunch.ErrPeerConnectTimeout
	ErrSyncTimeout               = holepunch.ErrSyncTimeout
	ErrDialTimeout               = holepunch.ErrDialTimeout
	ErrRelayConnectionClosed     = holepunch.ErrRelayConnectionClosed
	ErrMalformedMessage          = holepunch.ErrMalformedMessage
	ErrProtocolViolation         = holepunch.ErrProtocolViolation
	ErrTooManyConcurrentAttempts = holepunch.ErrTooManyConcurrentAttempts
	ErrPeerCooldown              = holepunch.ErrPeerCooldown
	ErrNoRelayedConn             = holepunch.ErrNoRelayedConn
)
