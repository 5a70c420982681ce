package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a manually advanced TimeSource.
type fakeSource struct {
	mu     sync.Mutex
	uptime float64
	system float64
	date   time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		uptime: 1000,
		system: 600,
		date:   time.Date(2021, 1, 22, 14, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSource) Uptime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uptime
}

func (f *fakeSource) SystemUptime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system
}

func (f *fakeSource) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date
}

// advance moves every reading forward as if the device was awake.
func (f *fakeSource) advance(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uptime += seconds
	f.system += seconds
	f.date = f.date.Add(time.Duration(seconds * float64(time.Second)))
}

// sleep moves only the readings that keep counting while suspended.
func (f *fakeSource) sleep(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uptime += seconds
	f.date = f.date.Add(time.Duration(seconds * float64(time.Second)))
}

func TestSimpleClockPauseResume(t *testing.T) {
	source := newFakeSource()
	c := NewSimpleClock(WithTimeSource(source))
	c.Reset()

	assert.Equal(t, 600.0, c.StartTime())
	assert.Equal(t, source.date, c.StartDate())
	assert.False(t, c.IsPaused())

	source.advance(5)
	c.Pause()
	c.Pause()
	assert.True(t, c.IsPaused())

	source.advance(10)
	c.Resume()
	c.Resume()
	assert.False(t, c.IsPaused())

	source.advance(8)
	assert.InDelta(t, 13.0, c.RunningDuration().Seconds(), 1e-6)

	c.Stop()
	source.advance(30)
	assert.InDelta(t, 13.0, c.RunningDuration().Seconds(), 1e-6)
}

func TestSimpleClockResetClearsPauses(t *testing.T) {
	source := newFakeSource()
	c := NewSimpleClock(WithTimeSource(source))
	c.Pause()
	source.advance(4)
	c.Stop()

	c.Reset()
	assert.False(t, c.IsPaused())
	source.advance(2)
	assert.InDelta(t, 2.0, c.RunningDuration().Seconds(), 1e-6)
}

func TestSimpleClockConversions(t *testing.T) {
	source := newFakeSource()
	c := NewSimpleClock(WithTimeSource(source))

	assert.Equal(t, 612.5, c.RelativeUptime(612.5))
	assert.InDelta(t, 12.5, c.ZeroRelativeTime(612.5), 1e-9)
	assert.InDelta(t, -10.0, c.ZeroRelativeTime(590), 1e-9)
}

func TestRunningDurationNeverNegative(t *testing.T) {
	source := newFakeSource()
	c := NewSimpleClock(WithTimeSource(source))
	c.Pause()
	source.advance(3)
	c.Resume()
	assert.Equal(t, time.Duration(0), c.RunningDuration())
}

const (
	clockTime  = 356541.29
	systemTime = 356000.00
	minute     = 60.0
)

func newTestSystemClock() *SystemClock {
	return NewSystemClockAt(
		TimeMarker{Clock: clockTime, System: systemTime},
		time.Date(2021, 1, 22, 14, 0, 0, 0, time.UTC),
		WithTimeSource(newFakeSource()),
	)
}

func TestSystemClockBeforeSleep(t *testing.T) {
	c := newTestSystemClock()
	c.AddMarker(TimeMarker{Clock: clockTime + 8*minute, System: systemTime + 8*minute - 5*minute})

	ts := systemTime + 60
	assert.InDelta(t, clockTime+60, c.RelativeUptime(ts), 1e-6)
	assert.InDelta(t, 60.0, c.ZeroRelativeTime(ts), 1e-6)
}

func TestSystemClockBeforeStart(t *testing.T) {
	c := newTestSystemClock()
	c.AddMarker(TimeMarker{Clock: clockTime + 8*minute, System: systemTime + 8*minute - 5*minute})

	ts := systemTime - 60
	assert.InDelta(t, clockTime-60, c.RelativeUptime(ts), 1e-6)
	assert.InDelta(t, -60.0, c.ZeroRelativeTime(ts), 1e-6)
}

func TestSystemClockAfterSleep(t *testing.T) {
	c := newTestSystemClock()
	c.AddMarker(TimeMarker{Clock: clockTime + 8*minute, System: systemTime + 8*minute - 5*minute})

	ts := systemTime + 10*minute - 5*minute
	assert.InDelta(t, clockTime+10*minute, c.RelativeUptime(ts), 1e-6)
	assert.InDelta(t, 10*minute, c.ZeroRelativeTime(ts), 1e-6)
}

func TestSystemClockAfterSleepTwice(t *testing.T) {
	c := newTestSystemClock()
	wakeClock1 := clockTime + 8*minute
	wakeSystem1 := systemTime + 8*minute - 5*minute
	c.AddMarker(TimeMarker{Clock: wakeClock1, System: wakeSystem1})

	wakeClock2 := wakeClock1 + 3*minute
	wakeSystem2 := wakeSystem1 + 3*minute - 2*minute
	c.AddMarker(TimeMarker{Clock: wakeClock2, System: wakeSystem2})

	ts := wakeSystem2 + 10*minute
	expected := wakeClock2 + 10*minute
	assert.InDelta(t, expected, c.RelativeUptime(ts), 1e-6)
	assert.InDelta(t, expected-clockTime, c.ZeroRelativeTime(ts), 1e-6)

	// A timestamp between the two wakes uses the first wake marker.
	between := wakeSystem1 + 30
	assert.InDelta(t, wakeClock1+30, c.RelativeUptime(between), 1e-6)
}

func TestSystemClockResetDropsMarkers(t *testing.T) {
	source := newFakeSource()
	c := NewSystemClock(WithTimeSource(source))
	source.sleep(120)
	c.AddTimeMarker()
	require.Len(t, c.Markers(), 2)

	source.advance(5)
	c.Reset()
	markers := c.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, TimeMarker{Clock: 1125, System: 605}, markers[0])
	assert.Equal(t, 1125.0, c.StartTime())
	assert.Equal(t, 605.0, c.StartSystemUptime())
}

func TestSystemClockRunningDurationIncludesSleep(t *testing.T) {
	source := newFakeSource()
	c := NewSystemClock(WithTimeSource(source))
	source.advance(10)
	source.sleep(50)
	assert.InDelta(t, 60.0, c.RunningDuration().Seconds(), 1e-6)
}

func TestSystemClockWatchSleep(t *testing.T) {
	source := newFakeSource()
	c := NewSystemClock(WithTimeSource(source))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.WatchSleep(ctx, 5*time.Millisecond)
	defer c.StopWatching()

	source.sleep(30)
	assert.Eventually(t, func() bool {
		return len(c.Markers()) == 2
	}, time.Second, 5*time.Millisecond)

	c.StopWatching()
	markers := c.Markers()
	assert.Equal(t, 1030.0, markers[1].Clock)
	assert.Equal(t, 600.0, markers[1].System)
}
