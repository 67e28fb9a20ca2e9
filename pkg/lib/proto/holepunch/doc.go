// Package holepunch 定义打洞协议的网络消息与帧编解码
//
// 线上格式与 libp2p DCUtR 兼容：
//
//	frame   = uvarint(len(message)) message
//	message = protobuf { 1: varint type; 2: repeated bytes ObsAddrs }
//
// type 取值 CONNECT=100、SYNC=300。CONNECT 携带发送方认为可达的直连地址，
// SYNC 没有载荷，只有到达时刻有意义。
//
// 解码面对的是不可信输入：声明长度在分配内存之前先与 MaxMessageSize 比较，
// 地址条数受 MaxAddrs 限制，违反任一约束都返回 ErrMalformedMessage。
package holepunch
