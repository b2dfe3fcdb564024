package stats

import gopsutilnet "github.com/shirou/gopsutil/v3/net"

// HostIOCounters returns best-effort per-interface network I/O counters
// for the host process, the same signal the teacher's health handler
// reports for the server process. Nothing in the Agent calls it, and
// no exported faith API surfaces it next to the per-connection
// TCP_INFO readouts in ConnectionRecord.
func HostIOCounters() ([]gopsutilnet.IOCountersStat, error) {
	return gopsutilnet.IOCounters(true)
}
