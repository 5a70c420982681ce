// Package motion records accelerometer, gyro and fused device motion
// samples into a motion log.
package motion

import (
	"context"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
)

// Event is a single reading delivered by a Source.
type Event interface {
	// Uptime is the system uptime at which the reading was taken.
	Uptime() float64
}

// VectorEvent is a raw accelerometer, gyro or magnetometer reading.
type VectorEvent struct {
	SystemUptime float64
	SensorType   action.MotionRecorderType
	X, Y, Z      float64
}

func (e VectorEvent) Uptime() float64 { return e.SystemUptime }

// DeviceMotionEvent is a fused reading. One event fans out into a record per
// configured device motion type.
type DeviceMotionEvent struct {
	SystemUptime float64
	Frame        records.ReferenceFrame
	records.DeviceMotion
}

func (e DeviceMotionEvent) Uptime() float64 { return e.SystemUptime }

// Request tells a Source what to stream.
type Request struct {
	Types    []action.MotionRecorderType
	Frame    records.ReferenceFrame
	Interval time.Duration
}

// WantsDeviceMotion reports whether any requested type is fused.
func (r Request) WantsDeviceMotion() bool {
	for _, t := range r.Types {
		if t.IsDeviceMotion() {
			return true
		}
	}
	return false
}

// Source is the motion hardware. Start returns once streaming has begun;
// sink may be called from any goroutine until Stop returns.
type Source interface {
	Start(ctx context.Context, req Request, sink func(Event)) error
	Stop() error
}
