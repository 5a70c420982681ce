package distance

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/clock"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/datalogger"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// StepCountIdentifier names the step count answer attached to the result.
const StepCountIdentifier = "stepCount"

type Options struct {
	Configuration action.DistanceConfiguration
	Source        LocationSource
	Pedometer     Pedometer
	AudioSession  *audiosession.Controller
	// IncludeCoordinates writes raw latitude and longitude into the log.
	IncludeCoordinates bool
	Base               recorder.Options
}

// Recorder logs location fixes with the distance travelled during the
// motion step.
type Recorder struct {
	*recorder.Recorder

	config             action.DistanceConfiguration
	source             LocationSource
	pedometer          Pedometer
	audio              *audiosession.Controller
	includeCoordinates bool

	mu    sync.Mutex
	first *Location
	last  *Location
	total float64
}

func New(opts Options) *Recorder {
	d := &Recorder{
		config:             opts.Configuration,
		source:             opts.Source,
		pedometer:          opts.Pedometer,
		audio:              opts.AudioSession,
		includeCoordinates: opts.IncludeCoordinates,
	}
	base := opts.Base
	base.Configuration = opts.Configuration
	base.Driver = d
	base.CodingKeys = records.LocationRecord{}.CodingKeys()
	base.JSONSchema = records.JSONSchema(records.LocationRecord{})
	if opts.Configuration.UsesCSVEncoding {
		base.Format = &datalogger.CSV
	}
	d.Recorder = recorder.New(base)
	return d
}

// TotalDistance is the distance in meters travelled during motion steps.
func (d *Recorder) TotalDistance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

func (d *Recorder) StartRecorder(ctx context.Context, r *recorder.Recorder, done func(action.Status, error)) {
	if d.audio != nil {
		d.audio.StartBackgroundAudioIfNeeded(d.Identifier())
	}
	if sc, ok := r.Clock().(*clock.SystemClock); ok {
		sc.WatchSleep(ctx, time.Second)
	}
	if d.pedometer != nil {
		if err := d.pedometer.Start(ctx); err != nil {
			r.Logger().Warn("Pedometer unavailable", "error", err)
			d.pedometer = nil
		}
	}
	if err := d.source.Start(ctx, d.handle); err != nil {
		r.Logger().Error("Failed to start location updates", "error", err)
		d.release(r)
		done(action.Failed, err)
		return
	}
	done(action.Running, nil)
}

func (d *Recorder) StopRecorder(_ context.Context, r *recorder.Recorder, done func(action.Status)) {
	if err := d.source.Stop(); err != nil {
		r.Logger().Warn("Failed to stop location updates", "error", err)
	}
	if d.pedometer != nil {
		steps, err := d.pedometer.Stop()
		if err != nil {
			r.Logger().Warn("Failed to read step count", "error", err)
		} else {
			r.AppendResults(result.Answer{
				Base: result.Base{
					ID:    StepCountIdentifier,
					Start: r.Clock().StartDate(),
					End:   r.TimeSource().Now(),
				},
				AnswerType: "integer",
				Value:      steps,
			})
		}
	}
	d.release(r)
	r.Logger().Info("Distance recording stopped", "meters", d.TotalDistance())
	done(action.Finished)
}

func (d *Recorder) release(r *recorder.Recorder) {
	if sc, ok := r.Clock().(*clock.SystemClock); ok {
		sc.StopWatching()
	}
	if d.audio != nil {
		d.audio.Stop(d.Identifier())
	}
}

func (d *Recorder) Marker(uptime, timestamp float64, date time.Time, stepPath, _ string) records.SampleRecord {
	return records.NewLocationMarker(uptime, timestamp, date, stepPath)
}

// inMotionStep reports whether distance accumulates during stepPath.
func (d *Recorder) inMotionStep(stepPath string) bool {
	id := d.config.MotionStepIdentifier
	return id == "" || stepPath == id || path.Base(stepPath) == id
}

func (d *Recorder) handle(loc Location) {
	if d.IsPaused() || d.Status() != action.Running || loc.HorizontalAccuracy < 0 {
		return
	}
	c := d.Clock()
	stepPath := d.StepPath(loc.SystemUptime)
	rec := records.LocationRecord{
		Uptime:    records.Float(c.RelativeUptime(loc.SystemUptime)),
		Timestamp: records.Float(c.ZeroRelativeTime(loc.SystemUptime)),
		StepPath:  stepPath,
		Altitude:  records.Float(loc.Altitude),
		Floor:     loc.Floor,
	}
	if !loc.Time.IsZero() {
		rec.TimestampDate = records.NewDate(loc.Time)
	}
	rec.HorizontalAccuracy = records.Float(loc.HorizontalAccuracy)
	if loc.VerticalAccuracy >= 0 {
		rec.VerticalAccuracy = records.Float(loc.VerticalAccuracy)
	}
	if loc.Course >= 0 {
		rec.Course = records.Float(loc.Course)
	}
	if loc.Speed >= 0 {
		rec.Speed = records.Float(loc.Speed)
	}
	if d.includeCoordinates {
		rec.Latitude = records.Float(loc.Latitude)
		rec.Longitude = records.Float(loc.Longitude)
	}

	d.mu.Lock()
	if d.first == nil {
		first := loc
		d.first = &first
	}
	if d.inMotionStep(stepPath) {
		if d.last != nil {
			rec.RelativeDistance = records.Float(Haversine(*d.last, loc))
			d.total += *rec.RelativeDistance
		}
		last := loc
		d.last = &last
	} else {
		d.last = nil
	}
	rec.TotalDistance = records.Float(d.total)
	rec.BearingRelativeToStart = records.Float(Bearing(*d.first, loc))
	d.mu.Unlock()

	d.WriteSample(rec)
}
