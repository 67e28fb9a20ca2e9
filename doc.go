// Package dcutr 提供 DCUtR（Direct Connection Upgrade through Relay）打洞的对外入口
//
// Upgrader 把中继连接升级为直连：
//
//	中继连接建立 ──> 准入控制 ──> CONNECT/SYNC 协调 ──> 同时拨号 ──> Outcome
//
// 中继电路、传输拨号和地址簿都由调用方提供，本包只负责协调。
//
// 使用示例：
//
//	up, err := dcutr.New(ctx, relayNotifier, dialer,
//	    dcutr.WithAddrSource(addrs),
//	    dcutr.WithPreset("server"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := up.Start(ctx); err != nil {
//	    return err
//	}
//	defer up.Close()
//
//	outcomes, cancel := up.Subscribe()
//	defer cancel()
//	for out := range outcomes {
//	    if out.Succeeded() {
//	        // 切换到直连
//	    }
//	}
package dcutr
