package protocolids

import (
	"github.com/dep2p/go-dcutr/pkg/types"
)

// SysPrefix 系统协议前缀
const SysPrefix = "/dep2p/sys/"

// ----------------------------------------------------------------------------
// 中继与 NAT 穿透协议
// ----------------------------------------------------------------------------

// SysHolepunch 打洞协议，在中继连接上交换 CONNECT/SYNC 完成直连升级
const SysHolepunch types.ProtocolID = SysPrefix + "holepunch/1.0.0"
