package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TimeMarker pairs a reading of the sleep-resistant uptime with the system
// uptime observed at the same instant.
type TimeMarker struct {
	Clock  float64
	System float64
}

// SystemClock runs on the sleep-resistant uptime axis and converts sensor
// timestamps across device sleeps using wake markers.
type SystemClock struct {
	mu      sync.RWMutex
	source  TimeSource
	state   pauseState
	markers []TimeMarker

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// NewSystemClock creates a clock anchored at the current instant.
func NewSystemClock(opts ...Option) *SystemClock {
	o := buildOptions(opts)
	c := &SystemClock{source: o.source}
	c.anchor(TimeMarker{Clock: o.source.Uptime(), System: o.source.SystemUptime()}, o.source.Now())
	return c
}

// NewSystemClockAt creates a clock anchored at an explicit correspondence.
func NewSystemClockAt(marker TimeMarker, date time.Time, opts ...Option) *SystemClock {
	o := buildOptions(opts)
	c := &SystemClock{source: o.source}
	c.anchor(marker, date)
	return c
}

func (c *SystemClock) anchor(marker TimeMarker, date time.Time) {
	c.markers = []TimeMarker{marker}
	c.state.reset(marker.Clock, date)
}

func (c *SystemClock) Now() float64 {
	return c.source.Uptime()
}

func (c *SystemClock) StartTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.startTime
}

func (c *SystemClock) StartDate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.startDate
}

// StartSystemUptime is the system uptime of the first marker.
func (c *SystemClock) StartSystemUptime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.markers[0].System
}

func (c *SystemClock) IsPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.pauseStart != nil
}

// Reset re-anchors the clock at the current instant and drops wake markers.
func (c *SystemClock) Reset() {
	marker := TimeMarker{Clock: c.source.Uptime(), System: c.source.SystemUptime()}
	date := c.source.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor(marker, date)
}

func (c *SystemClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Now()
	c.state.stopTime = &now
}

func (c *SystemClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.pause(c.Now())
}

func (c *SystemClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.resume(c.Now())
}

func (c *SystemClock) RunningDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.runningDuration(c.Now())
}

// AddTimeMarker records the current correspondence. Call it when the device
// wakes from sleep.
func (c *SystemClock) AddTimeMarker() {
	c.AddMarker(TimeMarker{Clock: c.source.Uptime(), System: c.source.SystemUptime()})
}

// AddMarker appends an explicit correspondence.
func (c *SystemClock) AddMarker(marker TimeMarker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = append(c.markers, marker)
}

// Markers returns a copy of the correspondence markers.
func (c *SystemClock) Markers() []TimeMarker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TimeMarker, len(c.markers))
	copy(out, c.markers)
	return out
}

// anchorFor returns the latest marker not after ts, or the first marker
// when ts predates all of them.
func (c *SystemClock) anchorFor(systemUptime float64) TimeMarker {
	for i := len(c.markers) - 1; i >= 0; i-- {
		if systemUptime >= c.markers[i].System {
			return c.markers[i]
		}
	}
	return c.markers[0]
}

func (c *SystemClock) RelativeUptime(systemUptime float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.anchorFor(systemUptime)
	return m.Clock + (systemUptime - m.System)
}

func (c *SystemClock) ZeroRelativeTime(systemUptime float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.anchorFor(systemUptime)
	return (systemUptime - m.System) + (m.Clock - c.markers[0].Clock)
}

// sleepTolerance is the drift between both uptimes that counts as a sleep.
const sleepTolerance = 0.5

// WatchSleep polls both time sources and adds a wake marker whenever the
// sleep-resistant uptime has moved ahead of the system uptime. It stops when
// ctx is done or StopWatching is called.
func (c *SystemClock) WatchSleep(ctx context.Context, interval time.Duration) {
	c.mu.Lock()
	if c.monitorStop != nil {
		c.mu.Unlock()
		return
	}
	c.monitorStop = make(chan struct{})
	c.monitorDone = make(chan struct{})
	stop, done := c.monitorStop, c.monitorDone
	c.mu.Unlock()

	if interval <= 0 {
		interval = time.Second
	}

	drift := c.source.Uptime() - c.source.SystemUptime()
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Debug("Clock sleep monitoring started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				current := c.source.Uptime() - c.source.SystemUptime()
				if current-drift > sleepTolerance {
					slog.Info("Device wake detected, adding clock marker", "slept", current-drift)
					c.AddTimeMarker()
				}
				drift = current
			}
		}
	}()
}

// StopWatching stops the goroutine started by WatchSleep and waits for it.
func (c *SystemClock) StopWatching() {
	c.mu.Lock()
	stop, done := c.monitorStop, c.monitorDone
	c.monitorStop, c.monitorDone = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
