package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/catalog"
)

const (
	openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	weatherAPIURL  = "https://api.weatherapi.com/v1/current.json"
)

// ErrMissingAPIKey is returned by keyed weather providers that have no key.
var ErrMissingAPIKey = errors.New("weather provider api key is not configured")

// OpenWeatherProvider answers the weather capability from OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *resilientClient
	catalog *catalog.Catalog
}

func NewOpenWeatherProvider(client *http.Client, apiKey, baseURL string, cat *catalog.Catalog, backoff BackoffConfig) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = openWeatherURL
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    newResilientClient("openweather", client, backoff),
		catalog: cat,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Capability() advisory.Capability {
	return advisory.CapabilityWeather
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", ErrMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", rc.Location.Lat))
		values.Set("lon", fmt.Sprintf("%f", rc.Location.Lon))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := p.http.do(ctx, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"` // m/s
		} `json:"wind"`
		Clouds struct {
			All float64 `json:"all"`
		} `json:"clouds"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding openweather response: %w", err)
	}
	if payload.Dt == 0 {
		return nil, fmt.Errorf("openweather response has no observation")
	}

	condition := ""
	if len(payload.Weather) > 0 {
		condition = payload.Weather[0].Main
	}

	return advisory.Payload{
		"temperature": fmt.Sprintf("%.0f°C", payload.Main.Temp),
		"humidity":    fmt.Sprintf("%.0f%%", payload.Main.Humidity),
		"cloud_cover": fmt.Sprintf("%.0f%%", payload.Clouds.All),
		"wind_speed":  fmt.Sprintf("%.0f km/h", payload.Wind.Speed*3.6),
		"condition":   condition,
		"alert":       conditionAlert(p.catalog, condition),
		"observed_at": time.Unix(payload.Dt, 0).UTC().Format(time.RFC3339),
	}, nil
}

// WeatherAPIProvider answers the weather capability from WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *resilientClient
	catalog *catalog.Catalog
}

func NewWeatherAPIProvider(client *http.Client, apiKey, baseURL string, cat *catalog.Catalog, backoff BackoffConfig) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = weatherAPIURL
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    newResilientClient("weatherapi", client, backoff),
		catalog: cat,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Capability() advisory.Capability {
	return advisory.CapabilityWeather
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", ErrMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location and accepts "lat,lon".
		values.Set("q", fmt.Sprintf("%f,%f", rc.Location.Lat, rc.Location.Lon))

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
			LastUpdatedEpoch int64   `json:"last_updated_epoch"`
			TempC            float64 `json:"temp_c"`
			Humidity         float64 `json:"humidity"`
			WindKph          float64 `json:"wind_kph"`
			PrecipMm         float64 `json:"precip_mm"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding weatherapi response: %w", err)
	}
	if payload.Current.LastUpdatedEpoch == 0 {
		return nil, fmt.Errorf("weatherapi response has no current conditions")
	}

	return advisory.Payload{
		"temperature":   fmt.Sprintf("%.0f°C", payload.Current.TempC),
		"humidity":      fmt.Sprintf("%.0f%%", payload.Current.Humidity),
		"precipitation": fmt.Sprintf("%.1f mm", payload.Current.PrecipMm),
		"wind_speed":    fmt.Sprintf("%.0f km/h", payload.Current.WindKph),
		"condition":     payload.Current.Condition.Text,
		"alert":         conditionAlert(p.catalog, payload.Current.Condition.Text),
		"observed_at":   time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC().Format(time.RFC3339),
	}, nil
}

// conditionCode maps free-text conditions onto a representative WMO code so
// both keyed providers share the catalogue's code-based alerts.
func conditionCode(text string) int {
	text = strings.ToLower(text)
	switch {
	case text == "":
		return -1
	case mentions(text, "thunder", "storm"):
		return 95
	case mentions(text, "heavy", "torrential"):
		return 82
	case mentions(text, "rain", "shower", "drizzle"):
		return 61
	case mentions(text, "clear", "sunny"):
		return 0
	default:
		return -1
	}
}

func conditionAlert(cat *catalog.Catalog, text string) string {
	if cat != nil {
		if alert, ok := cat.AlertForCode(conditionCode(text)); ok {
			return alert
		}
	}
	return "No active alerts."
}

// mentions returns true if s contains any of the substrings.
func mentions(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
