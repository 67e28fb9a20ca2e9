package holepunch

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// MaxMessageSize 单条消息体的最大字节数（不含长度前缀）
	MaxMessageSize = 4 * 1024

	// MaxAddrs CONNECT 消息中允许的最大地址数
	MaxAddrs = 64
)

const (
	fieldType     protowire.Number = 1
	fieldObsAddrs protowire.Number = 2
)

// ErrMalformedMessage 消息格式错误（截断、未知类型、超出安全上限）
var ErrMalformedMessage = errors.New("holepunch: malformed message")

// malformed 包装格式错误并附带原因
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// ============================================================================
//                              消息类型
// ============================================================================

// Type 消息类型
type Type int32

const (
	// Type_CONNECT 地址交换消息
	Type_CONNECT Type = 100 //nolint:revive // 与 protobuf 生成代码命名保持一致
	// Type_SYNC 同步消息
	Type_SYNC Type = 300 //nolint:revive // 与 protobuf 生成代码命名保持一致
)

// String 返回消息类型名
func (t Type) String() string {
	switch t {
	case Type_CONNECT:
		return "CONNECT"
	case Type_SYNC:
		return "SYNC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// HolePunch 打洞协议消息
type HolePunch struct {
	// Type 消息类型
	Type Type

	// ObsAddrs 发送方的候选地址（仅 CONNECT），顺序由发送方决定，编解码不改变顺序
	ObsAddrs [][]byte
}

// NewConnect 创建 CONNECT 消息
func NewConnect(addrs [][]byte) *HolePunch {
	return &HolePunch{Type: Type_CONNECT, ObsAddrs: addrs}
}

// NewSync 创建 SYNC 消息
func NewSync() *HolePunch {
	return &HolePunch{Type: Type_SYNC}
}

// Validate 校验消息的逻辑约束
func (m *HolePunch) Validate() error {
	switch m.Type {
	case Type_CONNECT:
		if len(m.ObsAddrs) > MaxAddrs {
			return malformed("too many addresses: %d > %d", len(m.ObsAddrs), MaxAddrs)
		}
	case Type_SYNC:
		if len(m.ObsAddrs) != 0 {
			return malformed("SYNC carries %d addresses", len(m.ObsAddrs))
		}
	default:
		return malformed("unknown message type %d", int32(m.Type))
	}
	return nil
}

// Equal 比较两条消息的逻辑内容（nil 与空地址列表等价）
func (m *HolePunch) Equal(other *HolePunch) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Type != other.Type || len(m.ObsAddrs) != len(other.ObsAddrs) {
		return false
	}
	for i := range m.ObsAddrs {
		if !bytes.Equal(m.ObsAddrs[i], other.ObsAddrs[i]) {
			return false
		}
	}
	return true
}

// ============================================================================
//                              protobuf 编解码
// ============================================================================

// Size 返回消息体编码后的字节数
func (m *HolePunch) Size() int {
	n := protowire.SizeTag(fieldType) + protowire.SizeVarint(uint64(m.Type))
	for _, a := range m.ObsAddrs {
		n += protowire.SizeTag(fieldObsAddrs) + protowire.SizeBytes(len(a))
	}
	return n
}

// Marshal 编码消息体（不含长度前缀）
func (m *HolePunch) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	size := m.Size()
	if size > MaxMessageSize {
		return nil, malformed("message size %d exceeds %d", size, MaxMessageSize)
	}

	b := make([]byte, 0, size)
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	for _, a := range m.ObsAddrs {
		b = protowire.AppendTag(b, fieldObsAddrs, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	return b, nil
}

// Unmarshal 解码消息体（不含长度前缀）
//
// 未知字段被跳过以保持前向兼容；解码结果必须通过 Validate。
func (m *HolePunch) Unmarshal(b []byte) error {
	if len(b) > MaxMessageSize {
		return malformed("message size %d exceeds %d", len(b), MaxMessageSize)
	}

	var (
		typ     Type
		hasType bool
		addrs   [][]byte
	)

	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldType && wt == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return malformed("type: %v", protowire.ParseError(n))
			}
			b = b[n:]
			typ = Type(int32(v)) //nolint:gosec // G115: 非法取值由 Validate 拒绝
			hasType = true

		case num == fieldObsAddrs && wt == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return malformed("address: %v", protowire.ParseError(n))
			}
			b = b[n:]
			if len(addrs) >= MaxAddrs {
				return malformed("too many addresses (> %d)", MaxAddrs)
			}
			addrs = append(addrs, bytes.Clone(v))

		default:
			n := protowire.ConsumeFieldValue(num, wt, b)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !hasType {
		return malformed("missing message type")
	}

	decoded := HolePunch{Type: typ, ObsAddrs: addrs}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*m = decoded
	return nil
}
