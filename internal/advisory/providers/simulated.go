package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/catalog"
)

// ErrImageRequired is returned by the pest provider when no leaf image is given.
var ErrImageRequired = errors.New("image reference is required for pest diagnosis")

// Simulation holds what the placeholder providers share: the catalogue,
// a seeded random source and an artificial latency.
type Simulation struct {
	Catalog *catalog.Catalog
	Latency time.Duration
	Now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulation creates a Simulation. A zero seed picks a random one.
func NewSimulation(cat *catalog.Catalog, latency time.Duration, seed uint64) *Simulation {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulation{
		Catalog: cat,
		Latency: latency,
		Now:     func() time.Time { return time.Now().UTC() },
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Providers returns one simulated provider per capability.
func (s *Simulation) Providers() []advisory.Provider {
	return []advisory.Provider{
		&SimulatedWeather{sim: s},
		&SimulatedPest{sim: s},
		&SimulatedSoil{sim: s},
		&SimulatedIrrigation{sim: s},
		&SimulatedMarket{sim: s},
	}
}

// between returns an int in [lo, hi].
func (s *Simulation) between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.IntN(hi-lo+1)
}

func (s *Simulation) uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulation) choice(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[s.between(0, len(items)-1)]
}

// wait models the backend round trip and honours ctx.
func (s *Simulation) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimulatedWeather returns hyper-local weather placeholders.
type SimulatedWeather struct{ sim *Simulation }

func (p *SimulatedWeather) Name() string                     { return "simulated-weather" }
func (p *SimulatedWeather) Capability() advisory.Capability { return advisory.CapabilityWeather }

func (p *SimulatedWeather) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if err := p.sim.wait(ctx); err != nil {
		return nil, err
	}
	return advisory.Payload{
		"temperature":              fmt.Sprintf("%d°C", p.sim.between(28, 35)),
		"humidity":                 fmt.Sprintf("%d%%", p.sim.between(60, 85)),
		"precipitation_chance_48h": fmt.Sprintf("%d%%", p.sim.between(10, 90)),
		"wind_speed":               fmt.Sprintf("%d km/h", p.sim.between(5, 15)),
		"alert":                    p.sim.choice(p.sim.Catalog.Alerts),
	}, nil
}

// SimulatedPest stands in for the leaf-image classifier.
type SimulatedPest struct{ sim *Simulation }

func (p *SimulatedPest) Name() string                     { return "simulated-pest-model" }
func (p *SimulatedPest) Capability() advisory.Capability { return advisory.CapabilityPestDiagnosis }

func (p *SimulatedPest) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if rc.ImageRef == "" {
		return nil, ErrImageRequired
	}
	if err := p.sim.wait(ctx); err != nil {
		return nil, err
	}

	diagnosis := p.sim.choice(p.sim.Catalog.DiseasesFor(rc.Crop))
	if diagnosis == "" || diagnosis == "Healthy" {
		return advisory.Payload{
			"diagnosis":      "Healthy",
			"confidence":     "98.7%",
			"recommendation": "No action needed. Continue regular monitoring.",
		}, nil
	}
	return advisory.Payload{
		"diagnosis":  diagnosis,
		"confidence": fmt.Sprintf("%d%%", p.sim.between(85, 99)),
		"recommendation": fmt.Sprintf(
			"Apply targeted organic pesticide for %s. Reduce pesticide usage by an estimated 40%% with this targeted approach.",
			diagnosis),
	}, nil
}

// SimulatedSoil stands in for the regional soil model.
type SimulatedSoil struct{ sim *Simulation }

func (p *SimulatedSoil) Name() string                     { return "simulated-soil-model" }
func (p *SimulatedSoil) Capability() advisory.Capability { return advisory.CapabilitySoilHealth }

func (p *SimulatedSoil) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if err := p.sim.wait(ctx); err != nil {
		return nil, err
	}
	soil := p.sim.Catalog.Soil
	ph := math.Round(p.sim.uniform(soil.PHMin, soil.PHMax)*10) / 10

	deficiencies := make([]string, len(soil.Deficiencies))
	copy(deficiencies, soil.Deficiencies)

	return advisory.Payload{
		"soil_type":    soil.Type,
		"ph":           ph,
		"deficiencies": deficiencies,
		"recommendation": fmt.Sprintf(
			"For %s, apply 50kg/ha of Urea and 10kg/ha of Zinc Sulphate. Consider adding 5 tons/ha of farmyard manure to improve long-term soil health.",
			rc.Crop),
	}, nil
}

// SimulatedIrrigation stands in for the irrigation optimiser.
type SimulatedIrrigation struct{ sim *Simulation }

func (p *SimulatedIrrigation) Name() string                     { return "simulated-water-model" }
func (p *SimulatedIrrigation) Capability() advisory.Capability { return advisory.CapabilityIrrigation }

func (p *SimulatedIrrigation) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if err := p.sim.wait(ctx); err != nil {
		return nil, err
	}
	stage := rc.CropStage
	if stage == "" {
		stage = "unspecified"
	}
	return advisory.Payload{
		"schedule":             "Irrigate for 30 minutes every 3 days using drip system.",
		"crop_stage":           stage,
		"water_saved_estimate": "35%",
		"next_irrigation":      p.sim.Now().AddDate(0, 0, 2).Format("2006-01-02"),
	}, nil
}

// SimulatedMarket stands in for the APMC price feed.
type SimulatedMarket struct{ sim *Simulation }

func (p *SimulatedMarket) Name() string                     { return "simulated-market-feed" }
func (p *SimulatedMarket) Capability() advisory.Capability { return advisory.CapabilityMarketPrice }

func (p *SimulatedMarket) Fetch(ctx context.Context, rc advisory.RequestContext) (advisory.Payload, error) {
	if err := p.sim.wait(ctx); err != nil {
		return nil, err
	}
	payload := advisory.Payload{
		"crop":            rc.Crop,
		"forecast_7_days": "Prices expected to remain stable with a slight upward trend due to festive demand.",
	}
	for _, m := range p.sim.Catalog.Markets {
		payload["avg_price_"+m.ID] = fmt.Sprintf("₹%d / quintal", p.sim.between(m.MinPrice, m.MaxPrice))
	}
	return payload, nil
}
