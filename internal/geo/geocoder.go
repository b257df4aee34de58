package geo

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
)

// ErrNoAPIKey is returned when geocoding is attempted without a key.
var ErrNoAPIKey = errors.New("geocoder api key is not configured")

// Resolver turns a place name into coordinates.
type Resolver interface {
	Resolve(city, country string) (advisory.Coordinates, error)
}

// GoogleResolver resolves places through the Google Geocoding API.
type GoogleResolver struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// The geocoder package keeps its key in a package variable.
var apiKeyMu sync.Mutex

func NewGoogleResolver(apiKey string) *GoogleResolver {
	return &GoogleResolver{apiKey: apiKey, lookup: geocoder.Geocoding}
}

func (r *GoogleResolver) Resolve(city, country string) (advisory.Coordinates, error) {
	if r.apiKey == "" {
		return advisory.Coordinates{}, ErrNoAPIKey
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return advisory.Coordinates{}, fmt.Errorf("city is required for geocoding")
	}

	apiKeyMu.Lock()
	geocoder.ApiKey = r.apiKey
	loc, err := r.lookup(geocoder.Address{
		City:    city,
		Country: strings.TrimSpace(country),
	})
	apiKeyMu.Unlock()
	if err != nil {
		return advisory.Coordinates{}, fmt.Errorf("geocoding %s,%s: %w", city, country, err)
	}
	return advisory.Coordinates{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}
