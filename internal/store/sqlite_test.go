package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

func testDB(t *testing.T, clk clock.Clock) *SQLiteCache {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "cache", "advisory.db"), clk)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	db := testDB(t, clk)
	ctx := context.Background()
	want := sampleResponse(clk.NowUTC())

	if err := db.Put(ctx, "weather|16.9|73.3", want, 15*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := db.Get(ctx, "weather|16.9|73.3")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %#v\n want %#v", got, want)
	}
}

func TestSQLiteRecreatesStaleSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisory.db")

	db, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.writeDB.Exec(`PRAGMA user_version = 1`); err != nil {
		t.Fatalf("downgrade version: %v", err)
	}
	if _, err := db.writeDB.Exec(`INSERT INTO advisory_cache (key, capability, produced_at, payload, expires_at)
		VALUES ('k', 'weather', 0, '{"temperature":"30°C"}', 9223372036854775807)`); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}
	db.Close()

	db, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if _, ok, err := db.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("expected legacy rows to be dropped, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteExpiry(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	db := testDB(t, clk)
	ctx := context.Background()

	if err := db.Put(ctx, "k", sampleResponse(clk.NowUTC()), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	clk.Advance(time.Minute)

	if _, ok, err := db.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss at expiry, ok=%v err=%v", ok, err)
	}
	if n := db.Sweep(); n != 1 {
		t.Errorf("expected 1 swept row, got %d", n)
	}
}

func TestSQLiteUpsertAndInvalidate(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	db := testDB(t, clk)
	ctx := context.Background()

	first := sampleResponse(clk.NowUTC())
	second := sampleResponse(clk.NowUTC())
	second.Payload = advisory.Payload{"temperature": "33°C"}

	_ = db.Put(ctx, "k", first, time.Hour)
	_ = db.Put(ctx, "k", second, time.Hour)

	got, ok, err := db.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Payload["temperature"] != "33°C" {
		t.Errorf("expected upserted payload, got %v", got.Payload)
	}

	if err := db.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := db.Get(ctx, "k"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestSQLiteBackendServesResultCache(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	db := testDB(t, clk)
	cache := advisory.NewResultCache(db, advisory.CacheConfig{DefaultTTL: time.Hour}, clk)

	calls := 0
	weather := advisory.ProviderFunc{
		ProviderName: "counting-weather",
		Cap:          advisory.CapabilityWeather,
		Fn: func(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
			calls++
			return advisory.Payload{"temperature": "30°C"}, nil
		},
	}
	agg := advisory.NewAggregator(advisory.NewRegistry(weather), cache, advisory.WithClock(clk))
	rc, err := advisory.NewRequestContext("u", advisory.Coordinates{Lat: 16.99, Lon: 73.31}, "Paddy", "", "")
	if err != nil {
		t.Fatalf("request context: %v", err)
	}

	agg.Request(context.Background(), rc, advisory.CapabilityWeather)
	res := agg.Request(context.Background(), rc, advisory.CapabilityWeather)

	if calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
	if !res.CacheHits[advisory.CapabilityWeather] {
		t.Error("expected second request to be served from sqlite")
	}
}

func TestSQLiteClosedReportsUnavailable(t *testing.T) {
	db := testDB(t, nil)
	db.Close()

	if _, _, err := db.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from closed database")
	}
}
