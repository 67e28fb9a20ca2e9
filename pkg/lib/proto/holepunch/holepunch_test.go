package holepunch

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"pgregory.net/rapid"

	varint "github.com/multiformats/go-varint"
)

// ============================================================================
//                              往返测试
// ============================================================================

func TestRoundTrip_Connect(t *testing.T) {
	msg := NewConnect([][]byte{
		[]byte("/ip4/1.2.3.4/udp/4001/quic-v1"),
		[]byte("/ip6/::1/tcp/8080"),
		[]byte("/ip4/10.0.0.1/tcp/4001"),
	})

	frame, err := Encode(msg)
	require.NoError(t, err)

	decoded, n, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.True(t, msg.Equal(decoded))
	assert.Equal(t, "/ip4/1.2.3.4/udp/4001/quic-v1", string(decoded.ObsAddrs[0]), "地址顺序保持")
	assert.Equal(t, "/ip4/10.0.0.1/tcp/4001", string(decoded.ObsAddrs[2]))
}

func TestRoundTrip_ZeroAddresses(t *testing.T) {
	for _, msg := range []*HolePunch{NewConnect(nil), NewConnect([][]byte{}), NewSync()} {
		frame, err := Encode(msg)
		require.NoError(t, err)

		decoded, _, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, msg.Type, decoded.Type)
		assert.Empty(t, decoded.ObsAddrs)
	}
}

// TestRoundTrip_Property decode(encode(m)) == m 对所有合法消息成立
func TestRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		typ := rapid.SampledFrom([]Type{Type_CONNECT, Type_SYNC}).Draw(t, "type")
		msg := &HolePunch{Type: typ}
		if typ == Type_CONNECT {
			msg.ObsAddrs = rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 48), 0, 16).Draw(t, "addrs")
		}

		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, n, err := Decode(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(frame) {
			t.Fatalf("consumed %d of %d bytes", n, len(frame))
		}
		if !msg.Equal(decoded) {
			t.Fatalf("round trip mismatch: %+v != %+v", msg, decoded)
		}
	})
}

func TestStream_Pipelined(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMsg(NewConnect([][]byte{[]byte("/ip4/1.1.1.1/tcp/1")})))
	require.NoError(t, w.WriteMsg(NewSync()))

	r := NewReader(&buf)
	first, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, Type_CONNECT, first.Type)

	second, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, Type_SYNC, second.Type)

	_, err = r.ReadMsg()
	assert.ErrorIs(t, err, io.EOF, "帧边界处关闭返回 io.EOF")
	assert.NotErrorIs(t, err, ErrMalformedMessage)
}

// ============================================================================
//                              非法输入测试
// ============================================================================

func TestDecode_Malformed(t *testing.T) {
	valid, err := Encode(NewConnect([][]byte{[]byte("/ip4/1.2.3.4/tcp/1")}))
	require.NoError(t, err)

	unknownType := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	unknownType = protowire.AppendVarint(unknownType, 200)

	syncWithAddrs := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	syncWithAddrs = protowire.AppendVarint(syncWithAddrs, uint64(Type_SYNC))
	syncWithAddrs = protowire.AppendTag(syncWithAddrs, fieldObsAddrs, protowire.BytesType)
	syncWithAddrs = protowire.AppendBytes(syncWithAddrs, []byte("x"))

	onlyAddrs := protowire.AppendTag(nil, fieldObsAddrs, protowire.BytesType)
	onlyAddrs = protowire.AppendBytes(onlyAddrs, []byte("x"))

	tests := []struct {
		name string
		data []byte
	}{
		{"空输入", nil},
		{"截断的帧体", valid[:len(valid)-3]},
		{"截断的长度前缀", []byte{0x80}},
		{"未知消息类型", frameOf(unknownType)},
		{"缺少消息类型", frameOf(onlyAddrs)},
		{"SYNC 携带地址", frameOf(syncWithAddrs)},
		{"非法 protobuf", frameOf([]byte{0x0a, 0xff})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestDecode_TooManyAddresses(t *testing.T) {
	body := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(Type_CONNECT))
	for i := 0; i <= MaxAddrs; i++ {
		body = protowire.AppendTag(body, fieldObsAddrs, protowire.BytesType)
		body = protowire.AppendBytes(body, []byte{byte(i)})
	}

	_, _, err := Decode(frameOf(body))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Encode(&HolePunch{Type: Type_CONNECT, ObsAddrs: make([][]byte, MaxAddrs+1)})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

// TestDecode_OversizedDeclaredLength 声明长度超限时立即失败，不按声明长度分配
func TestDecode_OversizedDeclaredLength(t *testing.T) {
	huge := varint.ToUvarint(1 << 40)
	data := append(huge, 0x08, 0x64)

	_, _, err := Decode(data)
	assert.ErrorIs(t, err, ErrMalformedMessage)

	r := NewReader(bytes.NewReader(data))
	_, err = r.ReadMsg()
	assert.ErrorIs(t, err, ErrMalformedMessage)

	allocs := testing.AllocsPerRun(50, func() {
		_, _ = NewReader(bytes.NewReader(data)).ReadMsg()
	})
	assert.Less(t, allocs, float64(20))

	// 刚好超过上限一个字节
	_, _, err = Decode(varint.ToUvarint(MaxMessageSize + 1))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestReader_TruncatedStream(t *testing.T) {
	frame, err := Encode(NewConnect([][]byte{[]byte("/ip4/1.2.3.4/tcp/1")}))
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(frame[:len(frame)-1]))
	_, err = r.ReadMsg()
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestReader_IOErrorPassthrough(t *testing.T) {
	boom := errors.New("stream reset")
	r := NewReader(errReader{err: boom})
	_, err := r.ReadMsg()
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	body := protowire.AppendTag(nil, 7, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte("future"))
	body = protowire.AppendTag(body, fieldType, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(Type_SYNC))

	msg := &HolePunch{}
	require.NoError(t, msg.Unmarshal(body))
	assert.Equal(t, Type_SYNC, msg.Type)
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "CONNECT", Type_CONNECT.String())
	assert.Equal(t, "SYNC", Type_SYNC.String())
	assert.Equal(t, "UNKNOWN(7)", Type(7).String())
}

// ============================================================================
//                              辅助
// ============================================================================

func frameOf(body []byte) []byte {
	return append(varint.ToUvarint(uint64(len(body))), body...)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
