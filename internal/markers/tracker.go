// Package markers keeps the ordered log of step transitions for a recording.
package markers

import (
	"sort"
	"sync"
)

// Marker is a single step transition on the clock uptime axis.
type Marker struct {
	Uptime   float64
	StepPath string
}

// Tracker records step transitions and answers which step was active at a
// given uptime. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	markers []Marker
	current string
}

// NewTracker creates a tracker whose fallback step is current.
func NewTracker(current string) *Tracker {
	return &Tracker{current: current}
}

// Append adds a transition and makes stepPath the current step.
func (t *Tracker) Append(uptime float64, stepPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markers = append(t.markers, Marker{Uptime: uptime, StepPath: stepPath})
	t.current = stepPath
}

// StepPath returns the step of the latest marker whose uptime is strictly
// less than uptime. A sample stamped exactly on a transition belongs to the
// step before it.
func (t *Tracker) StepPath(uptime float64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	// Markers are appended in time order; find the first one not before uptime.
	idx := sort.Search(len(t.markers), func(i int) bool {
		return t.markers[i].Uptime >= uptime
	})
	if idx == 0 {
		return "", false
	}
	return t.markers[idx-1].StepPath, true
}

// Lookup is StepPath with the current step as fallback.
func (t *Tracker) Lookup(uptime float64) string {
	if step, ok := t.StepPath(uptime); ok {
		return step
	}
	return t.Current()
}

func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// SetCurrent changes the fallback step without recording a transition.
func (t *Tracker) SetCurrent(stepPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = stepPath
}

// Markers returns a copy of the recorded transitions.
func (t *Tracker) Markers() []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Marker, len(t.markers))
	copy(out, t.markers)
	return out
}

// Len reports the number of recorded transitions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.markers)
}
