package holepunch

import (
	"time"

	"github.com/dep2p/go-dcutr/pkg/interfaces"
	"github.com/dep2p/go-dcutr/pkg/types"
)

// Outcome 一次打洞尝试的结果
//
// 每次尝试（包括被准入拒绝的请求）恰好产生一个 Outcome。
type Outcome struct {
	// AttemptID 尝试 ID，准入被拒时为空
	AttemptID string

	// Peer 对端节点
	Peer types.PeerID

	// Role 本端角色
	Role types.Role

	// Admitted 是否通过准入
	Admitted bool

	// State 终态：StateSucceeded 或 StateFailed
	State State

	// Reason 失败原因，成功时为 ReasonNone
	Reason Reason

	// Err 失败详情（*AttemptError），成功时为 nil
	Err error

	// Conn 成功时建立的直连
	Conn interfaces.DirectConn

	// Inbound 直连是否由对方拨入（本端未拨通）
	Inbound bool

	// RTT Initiator 测得的中继往返时间，Responder 为 0
	RTT time.Duration

	// Started 尝试开始时间
	Started time.Time

	// Duration 尝试耗时
	Duration time.Duration
}

// Succeeded 是否成功建立直连
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded && o.Conn != nil
}

// rejectedOutcome 构造准入拒绝的结果
func rejectedOutcome(peer types.PeerID, role types.Role, err error, now time.Time) Outcome {
	return Outcome{
		Peer:    peer,
		Role:    role,
		State:   StateFailed,
		Reason:  ReasonOf(err),
		Err:     err,
		Started: now,
	}
}
