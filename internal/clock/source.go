package clock

import (
	"time"
)

// TimeSource supplies the raw readings a clock is built from.
//
// Uptime keeps advancing while the device sleeps. SystemUptime is the
// timestamp base used by sensor events and freezes during sleep.
type TimeSource interface {
	Uptime() float64
	SystemUptime() float64
	Now() time.Time
}

var processStart = time.Now()

type systemSource struct{}

// SystemTimeSource returns the time source backed by the operating system.
func SystemTimeSource() TimeSource {
	return systemSource{}
}

func (systemSource) Now() time.Time {
	return time.Now()
}

// processUptime is the fallback when the platform clocks are unavailable.
func processUptime() float64 {
	return time.Since(processStart).Seconds()
}
