package service

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audio"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/distance"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/motion"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/weather"
)

const (
	defaultGPSDAddr       = "localhost:2947"
	defaultWeatherTimeout = 30 * time.Second
)

// Sources builds the hardware each recorder reads from. Every recorder
// gets its own instance.
type Sources struct {
	Motion   func() (motion.Source, error)
	Meter    func() (audio.Meter, error)
	Location func() (distance.LocationSource, error)

	Pedometer          distance.Pedometer
	WeatherLocation    weather.LocationProvider
	HTTPClient         *http.Client
	IncludeCoordinates bool
}

// NewSources maps the configured devices onto sources: a replay file for
// motion, a PipeWire meter for the microphone and gpsd for location.
func NewSources(cfg config.SourcesConfig) Sources {
	gpsd := cfg.Location.GPSD
	if gpsd == "" {
		gpsd = defaultGPSDAddr
	}

	s := Sources{
		Meter: func() (audio.Meter, error) {
			return audio.NewMeter(cfg.Audio.Backend, cfg.Audio.Source)
		},
		Location: func() (distance.LocationSource, error) {
			return &distance.GPSDSource{Addr: gpsd}, nil
		},
		HTTPClient: weather.NewHTTPClient(defaultWeatherTimeout),
	}
	if cfg.Motion.Replay != "" {
		s.Motion = func() (motion.Source, error) {
			data, err := os.ReadFile(cfg.Motion.Replay)
			if err != nil {
				return nil, fmt.Errorf("failed to read motion replay: %w", err)
			}
			return &motion.ReplaySource{Reader: bytes.NewReader(data), RealTime: cfg.Motion.RealTime}, nil
		}
	}
	if cfg.Location.Latitude != nil && cfg.Location.Longitude != nil {
		s.WeatherLocation = weather.StaticLocation{Latitude: *cfg.Location.Latitude, Longitude: *cfg.Location.Longitude}
	} else {
		s.WeatherLocation = weather.FirstFix{Source: &distance.GPSDSource{Addr: gpsd}}
	}
	return s
}

// Environment is what a Factory needs besides the configuration.
type Environment struct {
	SectionIdentifier string
	OutputDirectory   string
	InitialStepPath   string

	Permissions  *permission.Registry
	AudioSession *audiosession.Controller
	Delegate     action.Delegate
	Logger       *slog.Logger
	Sources      Sources
}

// Factory builds the controller for one configuration.
type Factory func(c action.Configuration, env Environment) (action.Controller, error)

// DefaultFactory builds the recorders of this module.
func DefaultFactory(c action.Configuration, env Environment) (action.Controller, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := recorder.Options{
		OutputDirectory:   env.OutputDirectory,
		InitialStepPath:   env.InitialStepPath,
		SectionIdentifier: env.SectionIdentifier,
		Permissions:       env.Permissions,
		Delegate:          env.Delegate,
		Logger:            logger.With("recorder", c.Identifier()),
	}

	switch conf := c.(type) {
	case action.MotionConfiguration:
		if env.Sources.Motion == nil {
			return nil, fmt.Errorf("recorder '%s': no motion source configured", c.Identifier())
		}
		src, err := env.Sources.Motion()
		if err != nil {
			return nil, fmt.Errorf("recorder '%s': %w", c.Identifier(), err)
		}
		return motion.New(motion.Options{
			Configuration: conf,
			Source:        src,
			AudioSession:  env.AudioSession,
			Base:          base,
		}), nil

	case action.MicrophoneConfiguration:
		if env.Sources.Meter == nil {
			return nil, fmt.Errorf("recorder '%s': no audio meter configured", c.Identifier())
		}
		meter, err := env.Sources.Meter()
		if err != nil {
			return nil, fmt.Errorf("recorder '%s': %w", c.Identifier(), err)
		}
		return audio.NewLevelRecorder(audio.Options{
			Configuration: conf,
			Meter:         meter,
			AudioSession:  env.AudioSession,
			Base:          base,
		}), nil

	case action.DistanceConfiguration:
		if env.Sources.Location == nil {
			return nil, fmt.Errorf("recorder '%s': no location source configured", c.Identifier())
		}
		src, err := env.Sources.Location()
		if err != nil {
			return nil, fmt.Errorf("recorder '%s': %w", c.Identifier(), err)
		}
		return distance.New(distance.Options{
			Configuration:      conf,
			Source:             src,
			Pedometer:          env.Sources.Pedometer,
			AudioSession:       env.AudioSession,
			IncludeCoordinates: env.Sources.IncludeCoordinates,
			Base:               base,
		}), nil

	case action.WeatherConfiguration:
		w, err := weather.New(weather.Options{
			Configuration: conf,
			HTTPClient:    env.Sources.HTTPClient,
			Location:      env.Sources.WeatherLocation,
			Base:          base,
		})
		if err != nil {
			return nil, fmt.Errorf("recorder '%s': %w", c.Identifier(), err)
		}
		return w, nil
	}
	return nil, action.NewValidationError(action.InvalidType,
		fmt.Sprintf("no recorder for configuration type '%s'", c.Type()))
}
