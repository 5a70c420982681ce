package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

const airNowURL = "https://www.airnowapi.org"

// AirNow reads today's air quality forecast within 25 miles.
type AirNow struct {
	Config  action.WeatherServiceConfiguration
	Client  *http.Client
	BaseURL string
	// Now picks the forecast day. It defaults to time.Now in local time.
	Now func() time.Time
}

func (s *AirNow) Configuration() action.WeatherServiceConfiguration { return s.Config }

func (s *AirNow) url(at Coordinates, day string) string {
	base := s.BaseURL
	if base == "" {
		base = airNowURL
	}
	return fmt.Sprintf("%s/aq/forecast/latLong/?format=application/json&latitude=%s&longitude=%s&date=%s&distance=25&API_KEY=%s",
		strings.TrimRight(base, "/"), formatDegrees(at.Latitude), formatDegrees(at.Longitude), day,
		url.QueryEscape(s.Config.Key))
}

func (s *AirNow) Fetch(ctx context.Context, at Coordinates) ([]ServiceResult, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	day := now.Format(time.DateOnly)

	body, err := get(ctx, s.Client, s.Config.Provider, s.url(at, day))
	if err != nil {
		return nil, err
	}
	res, err := parseAirNow(s.Config.Identifier, day, now, body)
	if err != nil {
		slog.Warn("Air quality response decoding failed", "provider", s.Config.Provider, "day", day, "error", err)
		return nil, err
	}
	return []ServiceResult{res}, nil
}

type airNowForecast struct {
	DateIssue    string  `json:"DateIssue"`
	DateForecast string  `json:"DateForecast"`
	StateCode    *string `json:"StateCode"`
	AQI          *int    `json:"AQI"`
	Category     *struct {
		Number int    `json:"Number"`
		Name   string `json:"Name"`
	} `json:"Category"`
}

// parseAirNow picks the forecast for day. The provider pads dates with
// trailing spaces.
func parseAirNow(identifier, day string, start time.Time, body []byte) (AirQualityServiceResult, error) {
	var forecasts []airNowForecast
	if err := json.Unmarshal(body, &forecasts); err != nil {
		return AirQualityServiceResult{}, fmt.Errorf("failed to decode airNow response: %w", err)
	}
	for _, f := range forecasts {
		if strings.TrimSpace(f.DateForecast) != day {
			continue
		}
		out := AirQualityServiceResult{
			ID:       identifier,
			Provider: action.ProviderAirNow,
			Start:    start,
			AQI:      f.AQI,
		}
		if f.Category != nil {
			out.Category = &Category{Number: f.Category.Number, Name: f.Category.Name}
		}
		return out, nil
	}
	return AirQualityServiceResult{}, action.NewValidationError(action.UnexpectedNullObject,
		"No valid dateForecast was returned.")
}
