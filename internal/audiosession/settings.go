// Package audiosession coordinates the process-wide audio session shared by
// every recorder that needs the microphone or background audio.
package audiosession

// Category is the audio session category.
type Category string

const (
	Ambient              Category = "ambient"
	SoloAmbient          Category = "soloAmbient"
	IntermittentPlayback Category = "intermittentPlayback"
	ContinuousPlayback   Category = "continuousPlayback"
	BackgroundPlayback   Category = "backgroundPlayback"
	Record               Category = "record"
	PlayAndRecord        Category = "playAndRecord"
)

var categoryRank = map[Category]int{
	Ambient:              0,
	SoloAmbient:          1,
	IntermittentPlayback: 2,
	ContinuousPlayback:   3,
	BackgroundPlayback:   4,
	Record:               5,
	PlayAndRecord:        6,
}

// IsRecording reports whether the category captures input.
func (c Category) IsRecording() bool {
	return c == Record || c == PlayAndRecord
}

// IsPlayback reports whether the category plays audio out.
func (c Category) IsPlayback() bool {
	switch c {
	case IntermittentPlayback, ContinuousPlayback, BackgroundPlayback, PlayAndRecord:
		return true
	}
	return false
}

// Mode tunes the session for a use case.
type Mode string

const (
	ModeDefault        Mode = "default"
	ModeGameChat       Mode = "gameChat"
	ModeMeasurement    Mode = "measurement"
	ModeMoviePlayback  Mode = "moviePlayback"
	ModeSpokenAudio    Mode = "spokenAudio"
	ModeVideoChat      Mode = "videoChat"
	ModeVideoRecording Mode = "videoRecording"
	ModeVoiceChat      Mode = "voiceChat"
	ModeVoicePrompt    Mode = "voicePrompt"
)

// MixingOptions controls how the session mixes with other apps.
type MixingOptions string

const (
	MixingDefault                        MixingOptions = "default"
	MixWithOthers                        MixingOptions = "mixWithOthers"
	DuckOthers                           MixingOptions = "duckOthers"
	InterruptSpokenAudioAndMixWithOthers MixingOptions = "interruptSpokenAudioAndMixWithOthers"
)

// Settings is one requested session configuration.
type Settings struct {
	Category      Category      `json:"category"`
	Mode          Mode          `json:"mode"`
	MixingOptions MixingOptions `json:"mixingOptions"`
}

// DefaultSettings is used when a caller does not care.
var DefaultSettings = Settings{Category: SoloAmbient, Mode: ModeDefault, MixingOptions: MixingDefault}

// BackgroundSilence keeps the process alive in the background by playing
// silence alongside other audio.
var BackgroundSilence = Settings{Category: BackgroundPlayback, Mode: ModeSpokenAudio, MixingOptions: MixWithOthers}

// RecordSettings is requested by the microphone recorder.
var RecordSettings = Settings{Category: Record, Mode: ModeMeasurement, MixingOptions: MixingDefault}

// Merge combines other into s. Recording and playback together become
// PlayAndRecord, otherwise the higher ranked category wins. Mode and
// mixing options keep the receiver's value unless it is the default.
func (s Settings) Merge(other Settings) Settings {
	out := s
	switch {
	case s.Category.IsRecording() && other.Category.IsPlayback(),
		s.Category.IsPlayback() && other.Category.IsRecording():
		out.Category = PlayAndRecord
	case categoryRank[other.Category] > categoryRank[s.Category]:
		out.Category = other.Category
	}
	if out.Mode == "" || out.Mode == ModeDefault {
		out.Mode = other.Mode
	}
	if out.MixingOptions == "" || out.MixingOptions == MixingDefault {
		out.MixingOptions = other.MixingOptions
	}
	return out
}
