package dcutr

import "errors"

// 公共错误定义
var (
	// ErrAlreadyStarted Upgrader 已启动
	ErrAlreadyStarted = errors.New("dcutr: already started")

	// ErrNotStarted Upgrader 未启动
	ErrNotStarted = errors.New("dcutr: not started")

	// ErrClosed Upgrader 已关闭
	ErrClosed = errors.New("dcutr: closed")
)
