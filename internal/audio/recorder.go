package audio

import (
	"context"
	"path/filepath"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/datalogger"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// ContentTypeWAV is the content type of saved microphone audio.
const ContentTypeWAV = "audio/wav"

type Options struct {
	Configuration action.MicrophoneConfiguration
	Meter         Meter
	AudioSession  *audiosession.Controller
	Base          recorder.Options
}

// LevelRecorder logs one audio level record per metering interval. Records
// are tagged with the step that is current when they are written.
type LevelRecorder struct {
	*recorder.Recorder

	config   action.MicrophoneConfiguration
	meter    Meter
	audio    *audiosession.Controller
	levelsID string
	audioID  string

	wav *wavWriter
}

func NewLevelRecorder(opts Options) *LevelRecorder {
	prefix := ""
	if opts.Base.SectionIdentifier != "" {
		prefix = opts.Base.SectionIdentifier + "_"
	}
	l := &LevelRecorder{
		config:   opts.Configuration,
		meter:    opts.Meter,
		audio:    opts.AudioSession,
		levelsID: prefix + opts.Configuration.Identifier() + "_levels",
		audioID:  prefix + opts.Configuration.Identifier() + "_audio",
	}

	base := opts.Base
	base.Configuration = opts.Configuration
	base.Driver = l
	base.LoggerIdentifiers = []string{l.levelsID}
	base.CodingKeys = records.AudioLevelRecord{}.CodingKeys()
	base.JSONSchema = records.JSONSchema(records.AudioLevelRecord{})
	base.KeepPrevious = !opts.Configuration.ShouldDeletePrevious()
	l.Recorder = recorder.New(base)
	return l
}

// LevelsLoggerIdentifier names the level log file.
func (l *LevelRecorder) LevelsLoggerIdentifier() string { return l.levelsID }

func (l *LevelRecorder) StartRecorder(ctx context.Context, r *recorder.Recorder, done func(action.Status, error)) {
	if l.audio != nil {
		l.audio.Start(l.Identifier(), audiosession.RecordSettings)
		if l.config.RequiresBackgroundAudio() {
			l.audio.StartBackgroundAudioIfNeeded(l.Identifier())
		}
	}

	if l.config.SaveAudioFile {
		if err := l.openAudioFile(r); err != nil {
			l.releaseSession()
			done(action.Failed, err)
			return
		}
	}

	interval := time.Duration(l.config.MeterInterval() * float64(time.Second))
	if err := l.meter.Start(ctx, interval, l.handle); err != nil {
		r.Logger().Error("Failed to start audio meter", "error", err)
		l.closeAudioFile(r)
		l.releaseSession()
		done(action.Failed, err)
		return
	}
	r.Logger().Info("Audio metering started", "interval", interval)
	done(action.Running, nil)
}

func (l *LevelRecorder) openAudioFile(r *recorder.Recorder) error {
	pw, ok := l.meter.(*PipeWireMeter)
	if !ok {
		r.Logger().Warn("Meter cannot save audio, skipping audio file")
		return nil
	}
	path, err := datalogger.PrepareFile(r.OutputDirectory(), l.audioID, "wav", l.config.ShouldDeletePrevious())
	if err != nil {
		return err
	}
	if l.wav, err = createWAV(path, pw.SampleRate); err != nil {
		return err
	}
	pw.Tee = l.wav
	return nil
}

func (l *LevelRecorder) closeAudioFile(r *recorder.Recorder) *result.File {
	if l.wav == nil {
		return nil
	}
	w := l.wav
	l.wav = nil
	if err := w.Close(); err != nil {
		r.Logger().Error("Failed to close audio file", "error", err)
		return nil
	}
	return &result.File{
		Base: result.Base{
			ID:    l.audioID[len(r.FilePrefix()):],
			Start: r.Clock().StartDate(),
			End:   r.TimeSource().Now(),
		},
		RelativePath: filepath.Base(w.Path()),
		URL:          w.Path(),
		ContentType:  ContentTypeWAV,
		StartUptime:  r.Clock().StartTime(),
	}
}

func (l *LevelRecorder) releaseSession() {
	if l.audio != nil {
		l.audio.Stop(l.Identifier())
	}
}

func (l *LevelRecorder) StopRecorder(_ context.Context, r *recorder.Recorder, done func(action.Status)) {
	if err := l.meter.Stop(); err != nil {
		r.Logger().Warn("Failed to stop audio meter", "error", err)
	}
	if file := l.closeAudioFile(r); file != nil {
		r.AppendResults(*file)
	}
	l.releaseSession()
	done(action.Finished)
}

func (l *LevelRecorder) handle(level Level) {
	if l.IsPaused() || l.Status() != action.Running {
		return
	}
	systemUptime := l.TimeSource().SystemUptime()
	c := l.Clock()
	rec := records.NewAudioLevelRecord(
		c.RelativeUptime(systemUptime),
		c.ZeroRelativeTime(systemUptime),
		l.CurrentStepPath(),
		l.config.MeterInterval(),
		level.Average,
		level.Peak,
	)
	l.WriteSampleTo(l.levelsID, rec)
}
