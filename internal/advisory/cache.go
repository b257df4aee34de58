package advisory

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

// CacheBackend is the storage behind ResultCache. Implementations must never
// return an entry past its expiry. A size bound, if any, is the backend's concern.
type CacheBackend interface {
	Get(ctx context.Context, key string) (ProviderResponse, bool, error)
	Put(ctx context.Context, key string, resp ProviderResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// CacheConfig controls freshness and fingerprint granularity.
type CacheConfig struct {
	DefaultTTL  time.Duration
	TTLs        map[Capability]time.Duration
	GridDegrees float64
}

// DefaultGridDegrees snaps coordinates to roughly 11 km cells.
const DefaultGridDegrees = 0.1

// ResultCache memoizes provider responses per fingerprint and collapses
// concurrent misses for the same fingerprint into a single provider call.
type ResultCache struct {
	backend CacheBackend
	cfg     CacheConfig
	clock   clock.Clock
	flights singleflight.Group
}

// NewResultCache wraps backend. A nil clock means the system clock.
func NewResultCache(backend CacheBackend, cfg CacheConfig, clk clock.Clock) *ResultCache {
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.GridDegrees <= 0 {
		cfg.GridDegrees = DefaultGridDegrees
	}
	return &ResultCache{backend: backend, cfg: cfg, clock: clk}
}

// TTL returns the freshness window for c.
func (c *ResultCache) TTL(capability Capability) time.Duration {
	if ttl, ok := c.cfg.TTLs[capability]; ok && ttl > 0 {
		return ttl
	}
	return c.cfg.DefaultTTL
}

// Key derives the cache fingerprint for capability and rc.
func (c *ResultCache) Key(capability Capability, rc RequestContext) string {
	return Fingerprint(capability, rc, c.cfg.GridDegrees)
}

// Get returns a fresh cached response. Backend failures count as misses.
func (c *ResultCache) Get(ctx context.Context, capability Capability, key string) (ProviderResponse, bool) {
	if c.backend == nil {
		return ProviderResponse{}, false
	}
	resp, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("capability", string(capability)).Str("key", key).
			Msg("cache read failed; falling back to provider")
		return ProviderResponse{}, false
	}
	return resp, ok
}

// Put stores resp under key. Degraded responses are never stored.
// A non-positive ttl selects the configured TTL for the capability.
func (c *ResultCache) Put(ctx context.Context, capability Capability, key string, resp ProviderResponse, ttl time.Duration) {
	if c.backend == nil || !resp.OK() {
		return
	}
	if ttl <= 0 {
		ttl = c.TTL(capability)
	}
	if err := c.backend.Put(ctx, key, resp, ttl); err != nil {
		log.Warn().Err(err).Str("capability", string(capability)).Str("key", key).
			Msg("cache write failed; response served uncached")
	}
}

// Invalidate drops the entry for key.
func (c *ResultCache) Invalidate(ctx context.Context, key string) error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Invalidate(ctx, key)
}

type loaded struct {
	resp ProviderResponse
	hit  bool
}

// Load returns the cached response for key or runs fetch to produce one.
// At most one fetch per key is in flight; other callers wait for its result
// unless their own ctx ends first, in which case they get a cancelled response.
// The shared fetch is detached from any single caller's cancellation.
func (c *ResultCache) Load(ctx context.Context, capability Capability, key string, fetch func(context.Context) ProviderResponse) (ProviderResponse, bool) {
	if resp, ok := c.Get(ctx, capability, key); ok {
		return resp, true
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may have filled the entry.
		if resp, ok := c.Get(flightCtx, capability, key); ok {
			return loaded{resp: resp, hit: true}, nil
		}
		resp := fetch(flightCtx)
		c.Put(flightCtx, capability, key, resp, 0)
		return loaded{resp: resp}, nil
	})

	select {
	case res := <-ch:
		l := res.Val.(loaded)
		return l.resp, l.hit
	case <-ctx.Done():
		return degraded(capability, "", ErrorCancelled, c.clock.NowUTC(), ctx.Err()), false
	}
}

// Fingerprint builds a stable key from the request fields that affect the
// answer for capability. Coordinates are snapped to a grid of gridDegrees.
func Fingerprint(capability Capability, rc RequestContext, gridDegrees float64) string {
	parts := []string{string(capability)}
	location := func() {
		parts = append(parts, snap(rc.Location.Lat, gridDegrees), snap(rc.Location.Lon, gridDegrees))
	}
	crop := strings.ToLower(strings.TrimSpace(rc.Crop))
	stage := strings.ToLower(strings.TrimSpace(rc.CropStage))

	switch capability {
	case CapabilityWeather:
		location()
	case CapabilityPestDiagnosis:
		location()
		parts = append(parts, crop, stage, strings.TrimSpace(rc.ImageRef))
	case CapabilitySoilHealth:
		location()
		parts = append(parts, crop)
	case CapabilityIrrigation:
		location()
		parts = append(parts, crop, stage)
	case CapabilityMarketPrice:
		parts = append(parts, crop)
	default:
		location()
		parts = append(parts, crop, stage)
	}
	return strings.Join(parts, "|")
}

func snap(v, grid float64) string {
	if grid <= 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	cell := math.Floor(v/grid + 1e-9)
	return strconv.FormatFloat(cell*grid, 'f', 6, 64)
}
