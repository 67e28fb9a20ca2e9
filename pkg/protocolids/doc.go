// Package protocolids 定义 go-dcutr 使用的协议 ID。
//
// 本包是协议 ID 的唯一来源，其他位置禁止定义协议字面量。
//
// 系统协议命名规范: /dep2p/sys/{name}/{version}
package protocolids
