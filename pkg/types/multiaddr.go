package types

// ============================================================================
//                              Multiaddr - 地址候选
// ============================================================================

// Multiaddr 传输层地址候选
//
// 对打洞协议而言地址是不透明的：只做逐字节比较和透传，
// 解析与拨号由外部传输层负责。
//
// 格式示例：
//   - /ip4/192.168.1.1/udp/4001/quic-v1
//   - /ip6/::1/tcp/4001
type Multiaddr string

// String 返回地址字符串
func (m Multiaddr) String() string {
	return string(m)
}

// Bytes 返回地址的字节表示（线上格式）
func (m Multiaddr) Bytes() []byte {
	return []byte(m)
}

// IsEmpty 检查地址是否为空
func (m Multiaddr) IsEmpty() bool {
	return m == ""
}

// MultiaddrsToBytes 将地址列表转换为线上格式，保持顺序
func MultiaddrsToBytes(addrs []Multiaddr) [][]byte {
	out := make([][]byte, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Bytes())
	}
	return out
}

// MultiaddrsFromBytes 从线上格式恢复地址列表，保持顺序
//
// 空字节串被跳过。
func MultiaddrsFromBytes(raw [][]byte) []Multiaddr {
	out := make([]Multiaddr, 0, len(raw))
	for _, b := range raw {
		if len(b) == 0 {
			continue
		}
		out = append(out, Multiaddr(b))
	}
	return out
}

// MultiaddrsToStrings 转换为字符串切片（用于日志）
func MultiaddrsToStrings(addrs []Multiaddr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}
