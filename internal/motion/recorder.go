package motion

import (
	"context"
	"slices"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/clock"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/datalogger"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
)

// sleepCheckInterval is how often a background recording checks whether
// the device slept.
const sleepCheckInterval = time.Second

// Options configures a motion Recorder. Base carries the shared recorder
// options; its Configuration, Driver and encoding fields are set by New.
type Options struct {
	Configuration action.MotionConfiguration
	Source        Source
	AudioSession  *audiosession.Controller
	Base          recorder.Options
}

// Recorder logs motion events from a Source.
type Recorder struct {
	*recorder.Recorder

	config action.MotionConfiguration
	source Source
	audio  *audiosession.Controller
	frame  records.ReferenceFrame
	types  []action.MotionRecorderType
}

func New(opts Options) *Recorder {
	m := &Recorder{
		config: opts.Configuration,
		source: opts.Source,
		audio:  opts.AudioSession,
		types:  opts.Configuration.Types(),
		frame:  records.ZUp,
	}
	if slices.Contains(m.types, action.MagneticField) {
		m.frame = records.NorthWestUp
	}

	base := opts.Base
	base.Configuration = opts.Configuration
	base.Driver = m
	base.CodingKeys = records.MotionRecord{}.CodingKeys()
	base.JSONSchema = records.JSONSchema(records.MotionRecord{})
	base.KeepPrevious = !opts.Configuration.ShouldDeletePrevious()
	if opts.Configuration.UsesCSVEncoding {
		base.Format = &datalogger.CSV
	}
	m.Recorder = recorder.New(base)
	return m
}

// Frame is the attitude reference frame requested from the source.
func (m *Recorder) Frame() records.ReferenceFrame { return m.frame }

func (m *Recorder) StartRecorder(ctx context.Context, r *recorder.Recorder, done func(action.Status, error)) {
	if m.config.RequiresBackgroundAudio() && m.audio != nil {
		m.audio.StartBackgroundAudioIfNeeded(m.Identifier())
	}
	if sc, ok := r.Clock().(*clock.SystemClock); ok {
		sc.WatchSleep(ctx, sleepCheckInterval)
	}

	req := Request{
		Types:    m.types,
		Frame:    m.frame,
		Interval: time.Duration(float64(time.Second) / m.config.SamplingFrequency()),
	}
	if err := m.source.Start(ctx, req, m.handle); err != nil {
		r.Logger().Error("Failed to start motion source", "error", err)
		done(action.Failed, err)
		return
	}
	r.Logger().Info("Motion recording started", "types", m.types, "frame", m.frame, "interval", req.Interval)
	done(action.Running, nil)
}

// StopRecorder reports stopping right away and finishes once the source has
// shut down.
func (m *Recorder) StopRecorder(_ context.Context, r *recorder.Recorder, done func(action.Status)) {
	done(action.Stopping)
	go func() {
		if err := m.source.Stop(); err != nil {
			r.Logger().Warn("Failed to stop motion source", "error", err)
		}
		if sc, ok := r.Clock().(*clock.SystemClock); ok {
			sc.StopWatching()
		}
		if m.audio != nil {
			m.audio.Stop(m.Identifier())
		}
		r.UpdateStatus(action.Finished, nil)
	}()
}

func (m *Recorder) Marker(uptime, timestamp float64, date time.Time, stepPath, _ string) records.SampleRecord {
	return records.NewMotionMarker(uptime, timestamp, date, stepPath)
}

func (m *Recorder) handle(e Event) {
	if m.IsPaused() || m.Status() != action.Running {
		return
	}
	c := m.Clock()
	uptime := c.RelativeUptime(e.Uptime())
	timestamp := c.ZeroRelativeTime(e.Uptime())
	stepPath := m.StepPath(e.Uptime())

	switch ev := e.(type) {
	case VectorEvent:
		if !slices.Contains(m.types, ev.SensorType) {
			return
		}
		v := records.Vector{X: ev.X, Y: ev.Y, Z: ev.Z}
		m.WriteSample(records.NewVectorRecord(stepPath, ev.SensorType, v, uptime, timestamp))
	case DeviceMotionEvent:
		frame := ev.Frame
		if frame == "" {
			frame = m.frame
		}
		var batch []records.SampleRecord
		for _, t := range m.types {
			if rec, ok := records.NewDeviceMotionRecord(stepPath, ev.DeviceMotion, frame, t, uptime, timestamp); ok {
				batch = append(batch, rec)
			}
		}
		m.WriteSamples(batch)
	}
}
