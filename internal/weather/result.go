// Package weather fetches current weather and air quality for the
// participant's location once per task.
package weather

import (
	"encoding/json"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// TypeWeather is the result type of a weather recorder.
const TypeWeather = "weather"

func init() {
	result.Register(TypeWeather, func() result.Data { return &Result{} })
}

// ServiceType tells weather and air quality responses apart.
type ServiceType string

const (
	ServiceWeather    ServiceType = "weather"
	ServiceAirQuality ServiceType = "airQuality"
)

// ServiceResult is one provider response. The implementations are
// WeatherServiceResult and AirQualityServiceResult.
type ServiceResult interface {
	ServiceType() ServiceType
	Identifier() string
	StartDate() time.Time

	isServiceResult()
}

type Precipitation struct {
	PastHour       *float64 `json:"pastHour,omitempty"`
	PastThreeHours *float64 `json:"pastThreeHours,omitempty"`
}

type Wind struct {
	// Speed in meters per second.
	Speed float64 `json:"speed"`
	// Degrees is the meteorological wind direction.
	Degrees *float64 `json:"degrees,omitempty"`
	Gust    *float64 `json:"gust,omitempty"`
}

// WeatherServiceResult holds current conditions. Temperature is Celsius,
// pressure hPa, humidity and clouds percent.
type WeatherServiceResult struct {
	ID                  string         `json:"identifier"`
	Provider            string         `json:"provider"`
	Start               time.Time      `json:"startDate"`
	Temperature         *float64       `json:"temperature,omitempty"`
	SeaLevelPressure    *float64       `json:"seaLevelPressure,omitempty"`
	GroundLevelPressure *float64       `json:"groundLevelPressure,omitempty"`
	Humidity            *float64       `json:"humidity,omitempty"`
	Clouds              *float64       `json:"clouds,omitempty"`
	Rain                *Precipitation `json:"rain,omitempty"`
	Snow                *Precipitation `json:"snow,omitempty"`
	Wind                *Wind          `json:"wind,omitempty"`
}

func (WeatherServiceResult) ServiceType() ServiceType { return ServiceWeather }
func (r WeatherServiceResult) Identifier() string     { return r.ID }
func (r WeatherServiceResult) StartDate() time.Time   { return r.Start }
func (WeatherServiceResult) isServiceResult()         {}

type Category struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type AirQualityServiceResult struct {
	ID       string    `json:"identifier"`
	Provider string    `json:"provider"`
	Start    time.Time `json:"startDate"`
	AQI      *int      `json:"aqi,omitempty"`
	Category *Category `json:"category,omitempty"`
}

func (AirQualityServiceResult) ServiceType() ServiceType { return ServiceAirQuality }
func (r AirQualityServiceResult) Identifier() string     { return r.ID }
func (r AirQualityServiceResult) StartDate() time.Time   { return r.Start }
func (AirQualityServiceResult) isServiceResult()         {}

// Result consolidates the weather and air quality responses of one task.
type Result struct {
	result.Base
	Weather    *WeatherServiceResult    `json:"weather,omitempty"`
	AirQuality *AirQualityServiceResult `json:"airQuality,omitempty"`
}

func NewResult(identifier string, start time.Time) *Result {
	return &Result{Base: result.Base{ID: identifier, Start: start}}
}

func (*Result) Type() string { return TypeWeather }

// Add stores s in the slot for its service type, replacing any earlier
// response of that type.
func (r *Result) Add(s ServiceResult) {
	switch v := s.(type) {
	case WeatherServiceResult:
		r.Weather = &v
	case AirQualityServiceResult:
		r.AirQuality = &v
	}
}

func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeWeather, (*alias)(r)})
}
