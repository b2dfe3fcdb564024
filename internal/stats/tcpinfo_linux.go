//go:build linux

package stats

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReadTCPInfo best-effort reads TCP_INFO for conn's underlying fd (§4
// Connection record "TCP telemetry (rtt_us, cwnd, etc. — best-effort)").
// ok is false for non-TCP connections or when the platform call fails.
func ReadTCPInfo(conn net.Conn) (rttMicros int64, cwnd int64, ok bool) {
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return 0, 0, false
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, 0, false
	}

	var info *unix.TCPInfo
	var getErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		info, getErr = unix.GetsockoptTCPInfo(int(fd), syscall.IPPROTO_TCP, syscall.TCP_INFO)
	})
	if ctrlErr != nil || getErr != nil || info == nil {
		return 0, 0, false
	}
	return int64(info.Rtt), int64(info.Snd_cwnd), true
}
