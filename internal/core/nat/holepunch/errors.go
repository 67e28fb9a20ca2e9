package holepunch

import (
	"errors"
	"fmt"

	pb "github.com/dep2p/go-dcutr/pkg/lib/proto/holepunch"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// ============================================================================
//                              失败原因
// ============================================================================

// Reason 打洞尝试的失败原因
type Reason int

const (
	// ReasonNone 无失败（成功）
	ReasonNone Reason = iota
	// ReasonPeerConnectTimeout 在超时前未收到对方 CONNECT
	ReasonPeerConnectTimeout
	// ReasonSyncTimeout SYNC 未能在超时前发送或收到
	ReasonSyncTimeout
	// ReasonDialTimeout 拨号阶段超时，双方都没有建立直连
	ReasonDialTimeout
	// ReasonRelayConnectionClosed 协调期间中继连接（或控制流）关闭
	ReasonRelayConnectionClosed
	// ReasonMalformedMessage 收到无法解码的消息
	ReasonMalformedMessage
	// ReasonProtocolViolation 收到不符合当前状态的消息
	ReasonProtocolViolation
	// ReasonTooManyConcurrentAttempts 准入被并发上限或速率限制拒绝
	ReasonTooManyConcurrentAttempts
	// ReasonPeerCooldown 准入被失败冷却拒绝
	ReasonPeerCooldown
)

// String 返回原因名
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonPeerConnectTimeout:
		return "PeerConnectTimeout"
	case ReasonSyncTimeout:
		return "SyncTimeout"
	case ReasonDialTimeout:
		return "DialTimeout"
	case ReasonRelayConnectionClosed:
		return "RelayConnectionClosed"
	case ReasonMalformedMessage:
		return "MalformedMessage"
	case ReasonProtocolViolation:
		return "ProtocolViolation"
	case ReasonTooManyConcurrentAttempts:
		return "TooManyConcurrentAttempts"
	case ReasonPeerCooldown:
		return "PeerCooldown"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// IsAdmission 是否为准入拒绝（尝试从未开始）
func (r Reason) IsAdmission() bool {
	return r == ReasonTooManyConcurrentAttempts || r == ReasonPeerCooldown
}

// Err 返回原因对应的哨兵错误
func (r Reason) Err() error {
	switch r {
	case ReasonPeerConnectTimeout:
		return ErrPeerConnectTimeout
	case ReasonSyncTimeout:
		return ErrSyncTimeout
	case ReasonDialTimeout:
		return ErrDialTimeout
	case ReasonRelayConnectionClosed:
		return ErrRelayConnectionClosed
	case ReasonMalformedMessage:
		return ErrMalformedMessage
	case ReasonProtocolViolation:
		return ErrProtocolViolation
	case ReasonTooManyConcurrentAttempts:
		return ErrTooManyConcurrentAttempts
	case ReasonPeerCooldown:
		return ErrPeerCooldown
	default:
		return nil
	}
}

// ============================================================================
//                              哨兵错误
// ============================================================================

var (
	// ErrPeerConnectTimeout 等待对方 CONNECT 超时
	ErrPeerConnectTimeout = errors.New("holepunch: timed out waiting for peer CONNECT")

	// ErrSyncTimeout SYNC 超时
	ErrSyncTimeout = errors.New("holepunch: timed out on SYNC")

	// ErrDialTimeout 拨号阶段超时
	ErrDialTimeout = errors.New("holepunch: no direct connection before dial timeout")

	// ErrRelayConnectionClosed 中继连接关闭
	ErrRelayConnectionClosed = errors.New("holepunch: relayed connection closed")

	// ErrMalformedMessage 消息格式错误（与编解码层为同一哨兵）
	ErrMalformedMessage = pb.ErrMalformedMessage

	// ErrProtocolViolation 协议违规
	ErrProtocolViolation = errors.New("holepunch: protocol violation")

	// ErrTooManyConcurrentAttempts 并发尝试过多
	ErrTooManyConcurrentAttempts = errors.New("holepunch: too many concurrent attempts")

	// ErrPeerCooldown 节点处于失败冷却期
	ErrPeerCooldown = errors.New("holepunch: peer in failure cooldown")
)

var (
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("holepunch: service closed")

	// ErrNoRelayedConn 没有到该节点的中继连接
	ErrNoRelayedConn = errors.New("holepunch: no relayed connection to peer")

	// ErrAttemptInProgress 该中继连接上已有进行中的尝试
	ErrAttemptInProgress = errors.New("holepunch: attempt already in progress on connection")

	// ErrInvalidRole 无效角色
	ErrInvalidRole = errors.New("holepunch: invalid role")
)

// ============================================================================
//                              AttemptError
// ============================================================================

// AttemptError 打洞尝试失败的详细错误
//
// errors.Is 既能匹配原因对应的哨兵错误，也能匹配底层原因。
type AttemptError struct {
	Peer   types.PeerID
	Role   types.Role
	State  State // 失败时所处状态
	Reason Reason
	Err    error // 底层原因，可为 nil
}

// Error 实现 error
func (e *AttemptError) Error() string {
	msg := fmt.Sprintf("holepunch %s with %s failed: %s", e.Role, e.Peer.ShortString(), e.Reason)
	if !e.Reason.IsAdmission() {
		msg += " in " + e.State.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回哨兵错误与底层原因
func (e *AttemptError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := e.Reason.Err(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReasonOf 提取错误对应的失败原因
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	for r := ReasonPeerConnectTimeout; r <= ReasonPeerCooldown; r++ {
		if errors.Is(err, r.Err()) {
			return r
		}
	}
	return ReasonNone
}
