package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

const openWeatherURL = "https://api.openweathermap.org"

// OpenWeather reads current conditions from the OpenWeather API in metric
// units.
type OpenWeather struct {
	Config action.WeatherServiceConfiguration
	Client *http.Client
	// BaseURL overrides the API host.
	BaseURL string
}

func (s *OpenWeather) Configuration() action.WeatherServiceConfiguration { return s.Config }

func (s *OpenWeather) url(at Coordinates) string {
	base := s.BaseURL
	if base == "" {
		base = openWeatherURL
	}
	return fmt.Sprintf("%s/data/2.5/weather?lat=%s&lon=%s&units=metric&appid=%s",
		strings.TrimRight(base, "/"), formatDegrees(at.Latitude), formatDegrees(at.Longitude),
		url.QueryEscape(s.Config.Key))
}

func (s *OpenWeather) Fetch(ctx context.Context, at Coordinates) ([]ServiceResult, error) {
	body, err := get(ctx, s.Client, s.Config.Provider, s.url(at))
	if err != nil {
		return nil, err
	}
	res, err := parseOpenWeather(s.Config.Identifier, body)
	if err != nil {
		slog.Warn("Weather response decoding failed", "provider", s.Config.Provider, "body", string(body), "error", err)
		return nil, err
	}
	return []ServiceResult{res}, nil
}

type openWeatherPrecipitation struct {
	PastHour       *float64 `json:"1h"`
	PastThreeHours *float64 `json:"3h"`
}

type openWeatherResponse struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		Pressure  *float64 `json:"pressure"`
		SeaLevel  *float64 `json:"sea_level"`
		GrndLevel *float64 `json:"grnd_level"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Clouds *struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain *openWeatherPrecipitation `json:"rain"`
	Snow *openWeatherPrecipitation `json:"snow"`
	DT   *int64                    `json:"dt"`
}

func parseOpenWeather(identifier string, body []byte) (WeatherServiceResult, error) {
	var resp openWeatherResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return WeatherServiceResult{}, fmt.Errorf("failed to decode openWeather response: %w", err)
	}
	if resp.Main == nil || resp.DT == nil {
		return WeatherServiceResult{}, errors.New("openWeather response is missing main or dt")
	}

	out := WeatherServiceResult{
		ID:                  identifier,
		Provider:            action.ProviderOpenWeather,
		Start:               time.Unix(*resp.DT, 0).UTC(),
		Temperature:         resp.Main.Temp,
		GroundLevelPressure: resp.Main.GrndLevel,
		Humidity:            resp.Main.Humidity,
	}
	// Plain pressure is sea level unless a ground level reading exists.
	out.SeaLevelPressure = resp.Main.SeaLevel
	if out.SeaLevelPressure == nil && resp.Main.GrndLevel == nil {
		out.SeaLevelPressure = resp.Main.Pressure
	}
	if resp.Clouds != nil {
		all := resp.Clouds.All
		out.Clouds = &all
	}
	if resp.Rain != nil {
		out.Rain = &Precipitation{PastHour: resp.Rain.PastHour, PastThreeHours: resp.Rain.PastThreeHours}
	}
	if resp.Snow != nil {
		out.Snow = &Precipitation{PastHour: resp.Snow.PastHour, PastThreeHours: resp.Snow.PastThreeHours}
	}
	if resp.Wind != nil && resp.Wind.Speed != nil {
		out.Wind = &Wind{Speed: *resp.Wind.Speed, Degrees: resp.Wind.Deg, Gust: resp.Wind.Gust}
	}
	return out, nil
}
