package advisory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

func TestResultCacheRoundTrip(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	cache := NewResultCache(newMapBackend(clk), CacheConfig{}, clk)

	stored := ProviderResponse{
		Capability: CapabilitySoilHealth,
		Provider:   "soil-model",
		ProducedAt: clk.NowUTC(),
		Payload:    Payload{"soil_type": "Lateritic", "ph": 5.9, "deficiencies": []string{"Nitrogen", "Zinc"}},
	}
	cache.Put(context.Background(), CapabilitySoilHealth, "k", stored, time.Minute)

	clk.Advance(59 * time.Second)
	got, ok := cache.Get(context.Background(), CapabilitySoilHealth, "k")
	if !ok {
		t.Fatal("expected cache hit before expiry")
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, stored)
	}

	clk.Advance(time.Second)
	if _, ok := cache.Get(context.Background(), CapabilitySoilHealth, "k"); ok {
		t.Error("entry returned at its expiry time")
	}
}

func TestResultCacheSkipsDegraded(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	cache := NewResultCache(newMapBackend(clk), CacheConfig{}, clk)

	cache.Put(context.Background(), CapabilityWeather, "k", degraded(CapabilityWeather, "w", ErrorTimeout, clk.NowUTC(), nil), 0)
	if _, ok := cache.Get(context.Background(), CapabilityWeather, "k"); ok {
		t.Fatal("degraded response must not be stored")
	}
}

func TestResultCacheTTLPerCapability(t *testing.T) {
	cache := NewResultCache(nil, CacheConfig{
		DefaultTTL: 10 * time.Minute,
		TTLs:       map[Capability]time.Duration{CapabilitySoilHealth: 24 * time.Hour},
	}, nil)

	if got := cache.TTL(CapabilitySoilHealth); got != 24*time.Hour {
		t.Errorf("soil TTL = %v", got)
	}
	if got := cache.TTL(CapabilityWeather); got != 10*time.Minute {
		t.Errorf("weather TTL = %v", got)
	}
}

func TestResultCacheInvalidate(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	cache := NewResultCache(newMapBackend(clk), CacheConfig{}, clk)
	resp := ProviderResponse{Capability: CapabilityMarketPrice, Provider: "m", ProducedAt: clk.NowUTC(), Payload: Payload{"crop": "Cashew"}}

	cache.Put(context.Background(), CapabilityMarketPrice, "k", resp, 0)
	if err := cache.Invalidate(context.Background(), "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := cache.Get(context.Background(), CapabilityMarketPrice, "k"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestFingerprint(t *testing.T) {
	base := RequestContext{UserID: "a", Location: Coordinates{Lat: 16.99, Lon: 73.31}, Crop: "Paddy", CropStage: "Flowering", ImageRef: "leaf.jpg"}

	tests := []struct {
		name  string
		cap   Capability
		other RequestContext
		same  bool
	}{
		{"weather ignores crop and user", CapabilityWeather, RequestContext{UserID: "b", Location: Coordinates{Lat: 16.91, Lon: 73.39}, Crop: "Cashew"}, true},
		{"weather separates grid cells", CapabilityWeather, RequestContext{Location: Coordinates{Lat: 17.01, Lon: 73.31}, Crop: "Paddy"}, false},
		{"market ignores location", CapabilityMarketPrice, RequestContext{Location: Coordinates{Lat: 18.52, Lon: 73.85}, Crop: " paddy "}, true},
		{"market separates crops", CapabilityMarketPrice, RequestContext{Location: base.Location, Crop: "Cashew"}, false},
		{"soil ignores stage", CapabilitySoilHealth, RequestContext{Location: base.Location, Crop: "Paddy", CropStage: "vegetative"}, true},
		{"irrigation uses stage", CapabilityIrrigation, RequestContext{Location: base.Location, Crop: "Paddy", CropStage: "vegetative"}, false},
		{"irrigation stage case-insensitive", CapabilityIrrigation, RequestContext{Location: base.Location, Crop: "PADDY", CropStage: "flowering"}, true},
		{"pest uses image", CapabilityPestDiagnosis, RequestContext{Location: base.Location, Crop: "Paddy", CropStage: "Flowering", ImageRef: "other.jpg"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Fingerprint(tt.cap, base, DefaultGridDegrees)
			b := Fingerprint(tt.cap, tt.other, DefaultGridDegrees)
			if (a == b) != tt.same {
				t.Errorf("fingerprints %q and %q: same=%v, want %v", a, b, a == b, tt.same)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	first := &fakeProvider{name: "first", cap: CapabilityWeather, payload: Payload{"t": 1}}
	second := &fakeProvider{name: "second", cap: CapabilityWeather, payload: Payload{"t": 2}}
	reg := NewRegistry(first)

	reg.Register(second)
	p, err := reg.Resolve(CapabilityWeather)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Name() != "second" {
		t.Errorf("expected replacement provider, got %s", p.Name())
	}

	if _, err := reg.Resolve(CapabilityIrrigation); err == nil {
		t.Error("expected error for unregistered capability")
	}

	reg.RegisterAs(CapabilityMarketPrice, first)
	if got := reg.Capabilities(); !reflect.DeepEqual(got, []Capability{CapabilityWeather, CapabilityMarketPrice}) {
		t.Errorf("capabilities = %v", got)
	}
}

func TestNewRequestContext(t *testing.T) {
	rc, err := NewRequestContext("", Coordinates{Lat: 16.99, Lon: 73.31}, "  Paddy ", " flowering ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.UserID == "" {
		t.Error("expected generated user id")
	}
	if rc.Crop != "Paddy" || rc.CropStage != "flowering" {
		t.Errorf("fields not trimmed: %+v", rc)
	}

	if _, err := NewRequestContext("u", Coordinates{Lat: 91}, "Paddy", "", ""); err == nil {
		t.Error("expected latitude validation error")
	}
	if _, err := NewRequestContext("u", Coordinates{Lon: -181}, "Paddy", "", ""); err == nil {
		t.Error("expected longitude validation error")
	}
	if _, err := NewRequestContext("u", Coordinates{}, " ", "", ""); err == nil {
		t.Error("expected crop validation error")
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability(" Weather ")
	if err != nil || c != CapabilityWeather {
		t.Fatalf("ParseCapability = %v, %v", c, err)
	}
	if _, err := ParseCapability("drone"); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}
