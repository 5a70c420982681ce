package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
)

// Configuration type discriminants.
const (
	TypeMicrophone = "microphone"
	TypeMotion     = "motion"
	TypeDistance   = "distance"
	TypeWeather    = "weather"
)

// Configuration describes one background action. The set of
// implementations is closed; switch on the concrete type.
type Configuration interface {
	Type() string
	Identifier() string
	StartStepIdentifier() string
	StopStepIdentifier() string
	Permissions() []permission.Type
	RequiresBackgroundAudio() bool
	Validate() error

	isConfiguration()
}

// Common holds the fields every configuration shares.
type Common struct {
	ID        string `json:"identifier" validate:"required"`
	StartStep string `json:"startStepIdentifier,omitempty"`
	StopStep  string `json:"stopStepIdentifier,omitempty"`
}

func (c Common) Identifier() string          { return c.ID }
func (c Common) StartStepIdentifier() string { return c.StartStep }
func (c Common) StopStepIdentifier() string  { return c.StopStep }
func (Common) isConfiguration()              {}

// MotionRecorderType names a motion sensor stream.
type MotionRecorderType string

const (
	Accelerometer    MotionRecorderType = "accelerometer"
	Attitude         MotionRecorderType = "attitude"
	Gravity          MotionRecorderType = "gravity"
	Gyro             MotionRecorderType = "gyro"
	MagneticField    MotionRecorderType = "magneticField"
	Magnetometer     MotionRecorderType = "magnetometer"
	RotationRate     MotionRecorderType = "rotationRate"
	UserAcceleration MotionRecorderType = "userAcceleration"
)

// IsDeviceMotion reports whether the type is derived from fused device
// motion rather than read from a raw sensor.
func (t MotionRecorderType) IsDeviceMotion() bool {
	switch t {
	case Attitude, Gravity, MagneticField, RotationRate, UserAcceleration:
		return true
	}
	return false
}

// DefaultMotionRecorderTypes is used when a motion configuration lists none.
var DefaultMotionRecorderTypes = []MotionRecorderType{Accelerometer, Gyro}

// DefaultMotionFrequency is the sampling frequency in hertz.
const DefaultMotionFrequency = 100.0

type MicrophoneConfiguration struct {
	Common
	BackgroundAudio bool  `json:"requiresBackgroundAudio,omitempty"`
	DeletePrevious  *bool `json:"shouldDeletePrevious,omitempty"`
	SaveAudioFile   bool  `json:"saveAudioFile,omitempty"`
	// Interval is the metering interval in seconds.
	Interval float64 `json:"interval,omitempty" validate:"gte=0"`
}

func (MicrophoneConfiguration) Type() string { return TypeMicrophone }

func (MicrophoneConfiguration) Permissions() []permission.Type {
	return []permission.Type{permission.Microphone}
}

func (c MicrophoneConfiguration) RequiresBackgroundAudio() bool { return c.BackgroundAudio }
func (c MicrophoneConfiguration) ShouldDeletePrevious() bool    { return boolOr(c.DeletePrevious, true) }

func (c MicrophoneConfiguration) MeterInterval() float64 {
	if c.Interval <= 0 {
		return 1
	}
	return c.Interval
}

func (c MicrophoneConfiguration) Validate() error { return validateStruct(c) }

func (c MicrophoneConfiguration) MarshalJSON() ([]byte, error) {
	type alias MicrophoneConfiguration
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeMicrophone, alias(c)})
}

type MotionConfiguration struct {
	Common
	RecorderTypes   []MotionRecorderType `json:"recorderTypes,omitempty" validate:"dive,oneof=accelerometer attitude gravity gyro magneticField magnetometer rotationRate userAcceleration"`
	BackgroundAudio bool                 `json:"requiresBackgroundAudio,omitempty"`
	Frequency       float64              `json:"frequency,omitempty" validate:"gte=0"`
	DeletePrevious  *bool                `json:"shouldDeletePrevious,omitempty"`
	UsesCSVEncoding bool                 `json:"usesCSVEncoding,omitempty"`
}

func (MotionConfiguration) Type() string { return TypeMotion }

func (MotionConfiguration) Permissions() []permission.Type {
	return []permission.Type{permission.Motion}
}

func (c MotionConfiguration) RequiresBackgroundAudio() bool { return c.BackgroundAudio }
func (c MotionConfiguration) ShouldDeletePrevious() bool    { return boolOr(c.DeletePrevious, true) }

// Types returns the configured sensor types, or the defaults.
func (c MotionConfiguration) Types() []MotionRecorderType {
	if len(c.RecorderTypes) == 0 {
		return DefaultMotionRecorderTypes
	}
	return c.RecorderTypes
}

// SamplingFrequency returns the configured frequency, or the default.
func (c MotionConfiguration) SamplingFrequency() float64 {
	if c.Frequency <= 0 {
		return DefaultMotionFrequency
	}
	return c.Frequency
}

func (c MotionConfiguration) Validate() error { return validateStruct(c) }

func (c MotionConfiguration) MarshalJSON() ([]byte, error) {
	type alias MotionConfiguration
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeMotion, alias(c)})
}

// DistanceConfiguration always runs with background audio so location
// updates continue while the screen is locked.
type DistanceConfiguration struct {
	Common
	MotionStepIdentifier string `json:"motionStepIdentifier,omitempty"`
	UsesCSVEncoding      bool   `json:"usesCSVEncoding,omitempty"`
}

func (DistanceConfiguration) Type() string                  { return TypeDistance }
func (DistanceConfiguration) RequiresBackgroundAudio() bool { return true }
func (DistanceConfiguration) ShouldDeletePrevious() bool    { return true }

func (DistanceConfiguration) Permissions() []permission.Type {
	return []permission.Type{permission.Location, permission.Motion}
}

func (c DistanceConfiguration) Validate() error { return validateStruct(c) }

func (c DistanceConfiguration) MarshalJSON() ([]byte, error) {
	type alias DistanceConfiguration
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeDistance, alias(c)})
}

// Weather service providers.
const (
	ProviderOpenWeather = "openWeather"
	ProviderAirNow      = "airNow"
)

type WeatherServiceConfiguration struct {
	Identifier string `json:"identifier" validate:"required"`
	Provider   string `json:"provider" validate:"required,oneof=openWeather airNow"`
	Key        string `json:"key" validate:"required"`
}

type WeatherConfiguration struct {
	Common
	Services []WeatherServiceConfiguration `json:"services" validate:"required,min=1,dive"`
}

func (WeatherConfiguration) Type() string                  { return TypeWeather }
func (WeatherConfiguration) RequiresBackgroundAudio() bool { return false }

func (WeatherConfiguration) Permissions() []permission.Type {
	return []permission.Type{permission.LocationWhenInUse}
}

func (c WeatherConfiguration) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if seen[s.Identifier] {
			return NewValidationError(NotUniqueIdentifiers,
				fmt.Sprintf("services[%d]: duplicate identifier '%s'", i, s.Identifier))
		}
		seen[s.Identifier] = true
	}
	return nil
}

func (c WeatherConfiguration) MarshalJSON() ([]byte, error) {
	type alias WeatherConfiguration
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeWeather, alias(c)})
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// DecodeConfiguration reads a configuration using its "type" field and
// validates it.
func DecodeConfiguration(data []byte) (Configuration, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read configuration type: %w", err)
	}

	var c Configuration
	var err error
	switch head.Type {
	case TypeMicrophone:
		c, err = decodeAs[MicrophoneConfiguration](data)
	case TypeMotion:
		c, err = decodeAs[MotionConfiguration](data)
	case TypeDistance:
		c, err = decodeAs[DistanceConfiguration](data)
	case TypeWeather:
		c, err = decodeAs[WeatherConfiguration](data)
	case "":
		return nil, NewValidationError(UnexpectedNullObject, "configuration is missing its type")
	default:
		return nil, NewValidationError(InvalidType, fmt.Sprintf("unsupported configuration type '%s'", head.Type))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s configuration: %w", head.Type, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeAs[T Configuration](data []byte) (Configuration, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeConfiguration writes c with its "type" discriminant.
func EncodeConfiguration(c Configuration) ([]byte, error) {
	return json.Marshal(c)
}

// ValidateIdentifiers checks that configuration identifiers are unique.
func ValidateIdentifiers(configs []Configuration) error {
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if seen[c.Identifier()] {
			return NewValidationError(NotUniqueIdentifiers,
				fmt.Sprintf("duplicate configuration identifier '%s'", c.Identifier()))
		}
		seen[c.Identifier()] = true
	}
	return nil
}

const tagName = "validate"

var structValidator struct {
	once     sync.Once
	validate *validator.Validate
}

func lazyValidator() *validator.Validate {
	structValidator.once.Do(func() {
		v := validator.New()
		v.SetTagName(tagName)
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator.validate = v
	})
	return structValidator.validate
}

// ValidateStruct runs the struct tag rules and converts failures to a
// ValidationError naming the offending field.
func ValidateStruct(v any) error {
	return validateStruct(v)
}

func validateStruct(v any) error {
	err := lazyValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(InvalidValue, err.Error())
	}
	fe := verrs[0]
	kind := InvalidValue
	if fe.Tag() == "required" {
		kind = UnexpectedNullObject
	}
	return NewValidationError(kind, fmt.Sprintf("%s failed '%s' validation", fe.Namespace(), fe.Tag()))
}
