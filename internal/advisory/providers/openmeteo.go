package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/catalog"
)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider answers the weather capability from the Open-Meteo forecast API.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	http    *resilientClient
	catalog *catalog.Catalog
	budget  time.Duration
}

// NewOpenMeteoProvider creates the provider. An empty baseURL selects the public API.
func NewOpenMeteoProvider(client *http.Client, baseURL string, cat *catalog.Catalog, backoff BackoffConfig) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = openMeteoURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		http:    newResilientClient("openmeteo", client, backoff),
		catalog: cat,
	}
}

// WithBudget overrides the aggregator's default time budget for this provider.
func (p *OpenMeteoProvider) WithBudget(d time.Duration) *OpenMeteoProvider {
	p.budget = d
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Capability() advisory.Capability {
	return advisory.CapabilityWeather
}

func (p *OpenMeteoProvider) Budget() time.Duration {
	return p.budget
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", rc.Location.Lat))
		values.Set("longitude", fmt.Sprintf("%f", rc.Location.Lon))
		values.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
		values.Set("hourly", "precipitation_probability")
		values.Set("forecast_days", "2")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := p.http.do(ctx, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time        string  `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			Humidity    float64 `json:"relative_humidity_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"` // km/h
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Hourly struct {
			PrecipitationProbability []float64 `json:"precipitation_probability"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding open-meteo response: %w", err)
	}
	if payload.Current.Time == "" {
		return nil, fmt.Errorf("open-meteo response has no current conditions")
	}

	// Precipitation chance over the next 48h is the peak hourly probability.
	var chance float64
	for _, v := range payload.Hourly.PrecipitationProbability {
		if v > chance {
			chance = v
		}
	}

	return advisory.Payload{
		"temperature":              fmt.Sprintf("%.0f°C", payload.Current.Temperature),
		"humidity":                 fmt.Sprintf("%.0f%%", payload.Current.Humidity),
		"precipitation_chance_48h": fmt.Sprintf("%.0f%%", chance),
		"wind_speed":               fmt.Sprintf("%.0f km/h", payload.Current.WindSpeed),
		"alert":                    p.alertFor(payload.Current.WeatherCode),
		"observed_at":              payload.Current.Time,
	}, nil
}

func (p *OpenMeteoProvider) alertFor(code int) string {
	if p.catalog != nil {
		if alert, ok := p.catalog.AlertForCode(code); ok {
			return alert
		}
	}
	return "No active alerts."
}
