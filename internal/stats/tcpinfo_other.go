//go:build !linux

package stats

import "net"

// ReadTCPInfo has no portable equivalent outside Linux's TCP_INFO
// sockopt; every other platform simply reports telemetry as
// unavailable rather than guessing.
func ReadTCPInfo(conn net.Conn) (rttMicros int64, cwnd int64, ok bool) {
	return 0, 0, false
}
