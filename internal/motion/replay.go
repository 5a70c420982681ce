package motion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/clock"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
)

type vectorLine struct {
	SensorType action.MotionRecorderType `json:"sensorType"`
	X          float64                   `json:"x"`
	Y          float64                   `json:"y"`
	Z          float64                   `json:"z"`
}

type xyz struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v xyz) vector() records.Vector { return records.Vector{X: v.X, Y: v.Y, Z: v.Z} }

type deviceMotionLine struct {
	Frame    records.ReferenceFrame `json:"frame"`
	Attitude struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
		W float64 `json:"w"`
	} `json:"attitude"`
	Gravity          xyz      `json:"gravity"`
	UserAcceleration xyz      `json:"userAcceleration"`
	RotationRate     xyz      `json:"rotationRate"`
	MagneticField    xyz      `json:"magneticField"`
	MagneticAccuracy int      `json:"magneticAccuracy"`
	Heading          *float64 `json:"heading"`
}

// replayLine is one line of a replay file, for example
//
//	{"uptime": 12.01, "vector": {"sensorType": "gyro", "x": 0.1, "y": 0, "z": 0}}
//	{"uptime": 12.02, "deviceMotion": {"frame": "Z-Up", "gravity": {"z": -1}}}
type replayLine struct {
	Uptime       float64           `json:"uptime"`
	Vector       *vectorLine       `json:"vector,omitempty"`
	DeviceMotion *deviceMotionLine `json:"deviceMotion,omitempty"`
}

// ParseEvent decodes a single replay line. The uptime is kept as written.
func ParseEvent(line []byte) (Event, error) {
	var l replayLine
	if err := json.Unmarshal(line, &l); err != nil {
		return nil, fmt.Errorf("error parsing replay line: %w", err)
	}
	switch {
	case l.Vector != nil:
		return VectorEvent{SystemUptime: l.Uptime, SensorType: l.Vector.SensorType, X: l.Vector.X, Y: l.Vector.Y, Z: l.Vector.Z}, nil
	case l.DeviceMotion != nil:
		d := l.DeviceMotion
		heading := -1.0
		if d.Heading != nil {
			heading = *d.Heading
		}
		frame := d.Frame
		if frame == "" {
			frame = records.ZUp
		}
		return DeviceMotionEvent{
			SystemUptime: l.Uptime,
			Frame:        frame,
			DeviceMotion: records.DeviceMotion{
				Attitude:         records.Quaternion{X: d.Attitude.X, Y: d.Attitude.Y, Z: d.Attitude.Z, W: d.Attitude.W},
				Gravity:          d.Gravity.vector(),
				UserAcceleration: d.UserAcceleration.vector(),
				RotationRate:     d.RotationRate.vector(),
				MagneticField:    d.MagneticField.vector(),
				MagneticAccuracy: d.MagneticAccuracy,
				Heading:          heading,
			},
		}, nil
	}
	return nil, errors.New("replay line has neither vector nor deviceMotion")
}

// ReplaySource plays back a JSON lines recording. Event uptimes are shifted
// so the first event happens when Start is called. With RealTime set the
// original spacing between events is kept, otherwise events are delivered
// as fast as they are read.
type ReplaySource struct {
	Reader     io.Reader
	TimeSource clock.TimeSource
	RealTime   bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when playback ends or the source is stopped.
func (s *ReplaySource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Err returns the error that ended playback, if any.
func (s *ReplaySource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ReplaySource) Start(ctx context.Context, req Request, sink func(Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("replay source already started")
	}
	if s.Reader == nil {
		return errors.New("replay source has no reader")
	}
	if s.TimeSource == nil {
		s.TimeSource = clock.SystemTimeSource()
	}
	if s.done == nil {
		s.done = make(chan struct{})
	}
	ctx, s.cancel = context.WithCancel(ctx)
	wanted := make(map[action.MotionRecorderType]bool, len(req.Types))
	for _, t := range req.Types {
		wanted[t] = true
	}
	go s.play(ctx, wanted, req.WantsDeviceMotion(), sink)
	return nil
}

func (s *ReplaySource) play(ctx context.Context, wanted map[action.MotionRecorderType]bool, deviceMotion bool, sink func(Event)) {
	var err error
	defer func() {
		s.mu.Lock()
		s.err = err
		close(s.done)
		s.mu.Unlock()
	}()

	base := s.TimeSource.SystemUptime()
	first := -1.0
	scanner := bufio.NewScanner(s.Reader)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if e, err = ParseEvent(line); err != nil {
			return
		}
		if first < 0 {
			first = e.Uptime()
		}
		offset := e.Uptime() - first

		if s.RealTime {
			wait := time.Duration((base + offset - s.TimeSource.SystemUptime()) * float64(time.Second))
			if wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		switch ev := e.(type) {
		case VectorEvent:
			if !wanted[ev.SensorType] {
				continue
			}
			ev.SystemUptime = base + offset
			sink(ev)
		case DeviceMotionEvent:
			if !deviceMotion {
				continue
			}
			ev.SystemUptime = base + offset
			sink(ev)
		}
	}
	if err = scanner.Err(); err != nil {
		slog.Warn("Motion replay stopped", "error", err)
	}
}

// Stop ends playback and waits for the playback goroutine.
func (s *ReplaySource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
