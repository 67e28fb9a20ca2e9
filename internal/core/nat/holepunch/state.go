package holepunch

// State 单次打洞尝试的状态
//
// 由所属协调器独占，外部只能读取快照。
type State int32

const (
	// StateAwaitingPeerConnect 等待对方 CONNECT（初始状态）
	StateAwaitingPeerConnect State = iota
	// StateMeasuringRtt 已交换 CONNECT：Initiator 测得 RTT，Responder 等待 SYNC
	StateMeasuringRtt
	// StateWaitingToSync Initiator 已发送 SYNC，等待 RTT/2
	StateWaitingToSync
	// StateDialing 已发出拨号指令，等待直连结果
	StateDialing
	// StateSucceeded 直连已建立（终态）
	StateSucceeded
	// StateFailed 尝试失败（终态）
	StateFailed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateAwaitingPeerConnect:
		return "AwaitingPeerConnect"
	case StateMeasuringRtt:
		return "MeasuringRtt"
	case StateWaitingToSync:
		return "WaitingToSync"
	case StateDialing:
		return "Dialing"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}
