package holepunch

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	varint "github.com/multiformats/go-varint"
)

// ============================================================================
//                              帧编解码
// ============================================================================

// Encode 将消息编码为一个带长度前缀的帧
func Encode(m *HolePunch) ([]byte, error) {
	body, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	frame = append(frame, varint.ToUvarint(uint64(len(body)))...)
	return append(frame, body...), nil
}

// Decode 从 data 开头解码一个帧
//
// 返回消息和消耗的字节数，剩余字节可以继续解码（同一流上的流水线消息）。
func Decode(data []byte) (*HolePunch, int, error) {
	length, n, err := varint.FromUvarint(data)
	if err != nil {
		if errors.Is(err, varint.ErrUnderflow) {
			return nil, 0, malformed("truncated length prefix")
		}
		return nil, 0, malformed("length prefix: %v", err)
	}
	if length > MaxMessageSize {
		return nil, 0, malformed("declared size %d exceeds %d", length, MaxMessageSize)
	}
	end := n + int(length) //nolint:gosec // G115: 已受 MaxMessageSize 限制
	if len(data) < end {
		return nil, 0, malformed("truncated frame: have %d of %d bytes", len(data)-n, length)
	}

	msg := &HolePunch{}
	if err := msg.Unmarshal(data[n:end]); err != nil {
		return nil, 0, err
	}
	return msg, end, nil
}

// Writer 帧写入器
type Writer struct {
	w io.Writer
}

// NewWriter 创建帧写入器
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMsg 写入一条消息（单次 Write 调用）
func (w *Writer) WriteMsg(m *HolePunch) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

// Reader 帧读取器
type Reader struct {
	r *bufio.Reader
}

// NewReader 创建帧读取器
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 512)}
}

// ReadMsg 读取一条消息
//
// 在帧边界处遇到 EOF 时原样返回 io.EOF（对端关闭了流）；
// 帧内截断、声明长度超限、内容非法时返回 ErrMalformedMessage；
// 其他 I/O 错误原样包装返回。
func (r *Reader) ReadMsg() (*HolePunch, error) {
	length, err := varint.ReadUvarint(r.r)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, malformed("truncated length prefix")
		case errors.Is(err, varint.ErrOverflow), errors.Is(err, varint.ErrNotMinimal):
			return nil, malformed("length prefix: %v", err)
		default:
			return nil, fmt.Errorf("read length: %w", err)
		}
	}

	// 先校验声明长度，再分配
	if length > MaxMessageSize {
		return nil, malformed("declared size %d exceeds %d", length, MaxMessageSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, malformed("truncated frame")
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	msg := &HolePunch{}
	if err := msg.Unmarshal(body); err != nil {
		return nil, err
	}
	return msg, nil
}
