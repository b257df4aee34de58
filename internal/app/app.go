package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/advisory/providers"
	"github.com/agrilocal/advisory-aggregation/internal/catalog"
	"github.com/agrilocal/advisory-aggregation/internal/config"
	"github.com/agrilocal/advisory-aggregation/internal/geo"
	"github.com/agrilocal/advisory-aggregation/internal/scheduler"
	"github.com/agrilocal/advisory-aggregation/internal/store"
)

// App bundles the long-lived pieces built from configuration.
type App struct {
	Config     *config.AppConfig
	Catalog    *catalog.Catalog
	Aggregator *advisory.Aggregator
	Sweeper    scheduler.Sweeper

	closers []func() error
}

// Build wires catalog, providers, cache backend and aggregator from cfg.
func Build(cfg *config.AppConfig) (*App, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Catalog: cat}

	var backend advisory.CacheBackend
	switch cfg.CacheBackend {
	case config.CacheBackendSQLite:
		db, err := store.OpenSQLite(cfg.CachePath, nil)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Sweeper = db
		backend = db
	default:
		mem := store.NewMemoryCache(cfg.CacheMaxEntries, nil)
		a.Sweeper = mem
		backend = mem
	}

	registry := advisory.NewRegistry(providers.NewSimulation(cat, cfg.SimulatedLatency, 0).Providers()...)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	switch cfg.WeatherBackend {
	case config.WeatherBackendOpenMeteo:
		registry.Register(providers.NewOpenMeteoProvider(httpClient, cfg.OpenMeteoURL, cat, providers.DefaultBackoff))
	case config.WeatherBackendOpenWeather:
		registry.Register(providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherKey, "", cat, providers.DefaultBackoff))
	case config.WeatherBackendWeatherAPI:
		registry.Register(providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, "", cat, providers.DefaultBackoff))
	}

	cache := advisory.NewResultCache(backend, cfg.CacheConfig(), nil)
	a.Aggregator = advisory.NewAggregator(registry, cache, advisory.WithBudget(cfg.ProviderTimeout))

	log.Info().
		Str("cache_backend", cfg.CacheBackend).
		Str("weather_backend", cfg.WeatherBackend).
		Int("capabilities", len(registry.Capabilities())).
		Msg("advisory engine ready")
	return a, nil
}

// Farms resolves the configured farms into request contexts, geocoding
// place names with resolver. Farms that cannot be resolved are skipped.
func (a *App) Farms(resolver geo.Resolver) []advisory.RequestContext {
	var out []advisory.RequestContext
	for _, f := range a.Config.FarmSpecs() {
		loc := f.Location
		if loc == nil {
			if resolver == nil {
				log.Warn().Str("city", f.City).Msg("farm needs geocoding but no resolver is configured")
				continue
			}
			resolved, err := resolver.Resolve(f.City, f.Country)
			if err != nil {
				log.Warn().Err(err).Str("city", f.City).Msg("skipping farm")
				continue
			}
			loc = &resolved
		}
		rc, err := advisory.NewRequestContext("scheduler", *loc, f.Crop, "", "")
		if err != nil {
			log.Warn().Err(err).Str("crop", f.Crop).Msg("skipping farm")
			continue
		}
		out = append(out, rc)
	}
	return out
}

// Close releases resources held by the cache backend. Every closer runs even
// if an earlier one fails.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
