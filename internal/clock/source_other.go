//go:build !linux

package clock

// Without a boot clock both readings come from the Go monotonic clock, so
// no sleep correction is observed.
func (systemSource) Uptime() float64 {
	return processUptime()
}

func (systemSource) SystemUptime() float64 {
	return processUptime()
}
