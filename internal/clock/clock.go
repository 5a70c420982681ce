// Package clock provides the time base used to stamp recorded samples.
//
// A clock is reset when a recording starts. Sample timestamps supplied by
// sensors are expressed in system uptime; the clock converts them to its own
// uptime axis (RelativeUptime) and to seconds since the recording started
// (ZeroRelativeTime).
package clock

import (
	"sync"
	"time"
)

// Clock is the time base owned by a single recorder.
type Clock interface {
	StartTime() float64
	StartDate() time.Time
	IsPaused() bool
	Now() float64
	Pause()
	Resume()
	Reset()
	Stop()
	RunningDuration() time.Duration
	RelativeUptime(systemUptime float64) float64
	ZeroRelativeTime(systemUptime float64) float64
}

// Option configures a clock.
type Option func(*options)

type options struct {
	source TimeSource
}

// WithTimeSource replaces the operating system time source.
func WithTimeSource(source TimeSource) Option {
	return func(o *options) {
		if source != nil {
			o.source = source
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{source: SystemTimeSource()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// pauseState tracks start, stop and pause accounting on an arbitrary
// time axis. Callers hold the owning clock's mutex.
type pauseState struct {
	startTime       float64
	startDate       time.Time
	stopTime        *float64
	pauseStart      *float64
	pauseCumulation float64
}

func (p *pauseState) reset(now float64, date time.Time) {
	p.startTime = now
	p.startDate = date
	p.stopTime = nil
	p.pauseStart = nil
	p.pauseCumulation = 0
}

func (p *pauseState) pause(now float64) {
	if p.pauseStart != nil {
		return
	}
	p.pauseStart = &now
}

func (p *pauseState) resume(now float64) {
	if p.pauseStart == nil {
		return
	}
	p.pauseCumulation += now - *p.pauseStart
	p.pauseStart = nil
}

func (p *pauseState) runningDuration(now float64) time.Duration {
	end := now
	if p.stopTime != nil {
		end = *p.stopTime
	}
	seconds := end - p.startTime - p.pauseCumulation
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// SimpleClock uses system uptime as its own axis, so sensor timestamps need
// no conversion beyond zeroing.
type SimpleClock struct {
	mu     sync.Mutex
	source TimeSource
	state  pauseState
}

// NewSimpleClock creates a clock started at the current system uptime.
func NewSimpleClock(opts ...Option) *SimpleClock {
	o := buildOptions(opts)
	c := &SimpleClock{source: o.source}
	c.state.reset(o.source.SystemUptime(), o.source.Now())
	return c
}

func (c *SimpleClock) Now() float64 {
	return c.source.SystemUptime()
}

func (c *SimpleClock) StartTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.startTime
}

func (c *SimpleClock) StartDate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.startDate
}

func (c *SimpleClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.pauseStart != nil
}

func (c *SimpleClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.reset(c.Now(), c.source.Now())
}

func (c *SimpleClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Now()
	c.state.stopTime = &now
}

func (c *SimpleClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.pause(c.Now())
}

func (c *SimpleClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.resume(c.Now())
}

func (c *SimpleClock) RunningDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.runningDuration(c.Now())
}

func (c *SimpleClock) RelativeUptime(systemUptime float64) float64 {
	return systemUptime
}

func (c *SimpleClock) ZeroRelativeTime(systemUptime float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return systemUptime - c.state.startTime
}
