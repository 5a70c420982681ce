package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

// Coordinates is a WGS84 position in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Service fetches one provider's view of the conditions at a position.
// Failures are returned as is; there is no retry.
type Service interface {
	Configuration() action.WeatherServiceConfiguration
	Fetch(ctx context.Context, at Coordinates) ([]ServiceResult, error)
}

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// NewService returns the implementation for the configured provider.
func NewService(cfg action.WeatherServiceConfiguration, client *http.Client) (Service, error) {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	switch cfg.Provider {
	case action.ProviderOpenWeather:
		return &OpenWeather{Config: cfg, Client: client}, nil
	case action.ProviderAirNow:
		return &AirNow{Config: cfg, Client: client}, nil
	default:
		return nil, action.NewValidationError(action.InvalidType,
			fmt.Sprintf("unsupported weather provider '%s'", cfg.Provider))
	}
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// get performs a GET and returns the body of a successful response.
func get(ctx context.Context, client *http.Client, provider, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s API error (%d): %s", provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
