package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/logx"
)

// Prefix is prepended to every environment variable, e.g. AGRILOCAL_PORT.
const Prefix = "agrilocal"

const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"

	WeatherBackendSimulated   = "simulated"
	WeatherBackendOpenMeteo   = "openmeteo"
	WeatherBackendOpenWeather = "openweather"
	WeatherBackendWeatherAPI  = "weatherapi"
)

// Profile is the farmer the interactive menu runs as.
type Profile struct {
	Name     string   `default:"Ramesh Patil"`
	Location string   `default:"Ratnagiri, Konkan"`
	FPO      string   `envconfig:"FPO" default:"Konkan Vikas FPO"`
	Lat      float64  `default:"16.99"`
	Lon      float64  `default:"73.31"`
	Crops    []string `default:"Paddy (भात),Alphonso Mango (हापूस आंबा),Cashew (काजू)"`
}

type AppConfig struct {
	Port string `default:"8080"`

	// ProviderTimeout is the default time budget of a single provider call.
	ProviderTimeout time.Duration `split_words:"true" default:"5s"`

	// Cache freshness per capability, e.g. "weather:15m,soil_health:24h".
	CacheTTL         map[string]time.Duration `envconfig:"CACHE_TTL" default:"weather:15m,pest_diagnosis:6h,soil_health:24h,irrigation:1h,market_price:30m"`
	CacheDefaultTTL  time.Duration            `split_words:"true" default:"10m"`
	CacheGridDegrees float64                  `split_words:"true" default:"0.1"`
	CacheBackend     string                   `split_words:"true" default:"memory"`
	CachePath        string                   `split_words:"true" default:"data/advisory-cache.db"`
	CacheMaxEntries  int                      `split_words:"true" default:"0"` // 0 = unlimited

	WeatherBackend   string        `split_words:"true" default:"simulated"`
	OpenMeteoURL     string        `envconfig:"OPEN_METEO_URL"`
	OpenWeatherKey   string        `envconfig:"OPENWEATHER_API_KEY"`
	WeatherAPIKey    string        `envconfig:"WEATHERAPI_KEY"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	SimulatedLatency time.Duration `split_words:"true" default:"0s"`
	CatalogPath      string        `split_words:"true"`

	// Farms are pre-fetched by the scheduler: "Paddy@16.99,73.31;Cashew@Ratnagiri,IN".
	Farms          string        `default:""`
	GeocoderAPIKey string        `envconfig:"GEOCODER_API_KEY"`
	WarmInterval   time.Duration `split_words:"true" default:"15m"`
	SweepInterval  time.Duration `split_words:"true" default:"1m"`

	Profile Profile     `envconfig:"PROFILE"`
	Log     logx.Config `envconfig:"LOG"`
}

// FarmSpec is one configured farm. Either Location is set, or City/Country
// must be geocoded.
type FarmSpec struct {
	Crop     string
	Location *advisory.Coordinates
	City     string
	Country  string
}

// Load reads configuration from the environment (and .env) with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg AppConfig
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and cross-field constraints.
func (c *AppConfig) Validate() error {
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendSQLite:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.WeatherBackend {
	case WeatherBackendSimulated, WeatherBackendOpenMeteo:
	case WeatherBackendOpenWeather:
		if c.OpenWeatherKey == "" {
			return fmt.Errorf("WEATHER_BACKEND %q requires OPENWEATHER_API_KEY", c.WeatherBackend)
		}
	case WeatherBackendWeatherAPI:
		if c.WeatherAPIKey == "" {
			return fmt.Errorf("WEATHER_BACKEND %q requires WEATHERAPI_KEY", c.WeatherBackend)
		}
	default:
		return fmt.Errorf("invalid WEATHER_BACKEND %q", c.WeatherBackend)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.CacheGridDegrees <= 0 {
		return fmt.Errorf("CACHE_GRID_DEGREES must be positive")
	}
	for name := range c.CacheTTL {
		if _, err := advisory.ParseCapability(name); err != nil {
			return fmt.Errorf("invalid CACHE_TTL entry: %w", err)
		}
	}
	if _, err := ParseFarms(c.Farms); err != nil {
		return err
	}
	return nil
}

// CacheConfig converts the cache settings for advisory.NewResultCache.
func (c *AppConfig) CacheConfig() advisory.CacheConfig {
	ttls := make(map[advisory.Capability]time.Duration, len(c.CacheTTL))
	for name, ttl := range c.CacheTTL {
		if capability, err := advisory.ParseCapability(name); err == nil {
			ttls[capability] = ttl
		}
	}
	return advisory.CacheConfig{
		DefaultTTL:  c.CacheDefaultTTL,
		TTLs:        ttls,
		GridDegrees: c.CacheGridDegrees,
	}
}

// FarmSpecs returns the parsed farm list. Validate has already checked it.
func (c *AppConfig) FarmSpecs() []FarmSpec {
	farms, _ := ParseFarms(c.Farms)
	return farms
}

// ParseFarms parses "crop@lat,lon" or "crop@City,Country" entries separated by ';'.
func ParseFarms(s string) ([]FarmSpec, error) {
	var farms []FarmSpec
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		crop, place, ok := strings.Cut(entry, "@")
		crop = strings.TrimSpace(crop)
		if !ok || crop == "" || strings.TrimSpace(place) == "" {
			return nil, fmt.Errorf("invalid FARMS entry %q: want crop@place", entry)
		}

		first, second, _ := strings.Cut(place, ",")
		first, second = strings.TrimSpace(first), strings.TrimSpace(second)

		lat, latErr := strconv.ParseFloat(first, 64)
		lon, lonErr := strconv.ParseFloat(second, 64)
		if latErr == nil && lonErr == nil {
			farms = append(farms, FarmSpec{Crop: crop, Location: &advisory.Coordinates{Lat: lat, Lon: lon}})
			continue
		}
		if latErr == nil {
			return nil, fmt.Errorf("invalid FARMS entry %q: bad longitude", entry)
		}
		farms = append(farms, FarmSpec{Crop: crop, City: first, Country: second})
	}
	return farms, nil
}
