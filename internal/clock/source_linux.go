//go:build linux

package clock

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// Uptime reads CLOCK_BOOTTIME, which includes time spent suspended.
func (systemSource) Uptime() float64 {
	return readClock(unix.CLOCK_BOOTTIME)
}

// SystemUptime reads CLOCK_MONOTONIC, which stops while suspended.
func (systemSource) SystemUptime() float64 {
	return readClock(unix.CLOCK_MONOTONIC)
}

func readClock(id int32) float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		slog.Debug("clock_gettime failed, using process uptime", "clock", id, "error", err)
		return processUptime()
	}
	return float64(ts.Sec) + float64(ts.Nsec)*1e-9
}
