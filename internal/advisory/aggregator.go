package advisory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

// Aggregator fans a request out to the providers of each requested
// capability, consulting the cache first, and merges what comes back.
type Aggregator struct {
	registry *Registry
	cache    *ResultCache
	budget   time.Duration
	clock    clock.Clock
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used to stamp degraded responses.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithBudget sets the default provider time budget.
func WithBudget(d time.Duration) Option {
	return func(a *Aggregator) { a.budget = d }
}

// NewAggregator creates an Aggregator. A nil cache disables caching.
func NewAggregator(registry *Registry, cache *ResultCache, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		cache:    cache,
		budget:   DefaultProviderBudget,
		clock:    clock.SystemUTC{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry exposes the provider registry backing this aggregator.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// Cache exposes the result cache, which may be nil.
func (a *Aggregator) Cache() *ResultCache {
	return a.cache
}

// Request produces an AggregateResult for rc. With no capabilities given,
// every registered capability is requested. It always returns a result;
// provider problems show up as degraded responses and unregistered
// capabilities as entries in Failures.
func (a *Aggregator) Request(ctx context.Context, rc RequestContext, capabilities ...Capability) AggregateResult {
	if len(capabilities) == 0 {
		capabilities = a.registry.Capabilities()
	}
	capabilities = dedupe(capabilities)

	result := AggregateResult{
		RequestID: uuid.NewString(),
		Context:   rc,
		Responses: make(map[Capability]ProviderResponse, len(capabilities)),
		Failures:  make(map[Capability]error),
		CacheHits: make(map[Capability]bool),
	}

	logger := log.With().Str("request_id", result.RequestID).Str("user", rc.UserID).Logger()
	logger.Debug().Int("capabilities", len(capabilities)).Msg("advisory request")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, c := range capabilities {
		p, err := a.registry.Resolve(c)
		if err != nil {
			logger.Error().Err(err).Str("capability", string(c)).Msg("capability skipped")
			result.Failures[c] = err
			continue
		}

		wg.Add(1)
		go func(c Capability, p Provider) {
			defer wg.Done()

			resp, hit := a.fetch(ctx, c, p, rc)
			if resp.Degraded {
				// Log and continue; siblings still count.
				logger.Warn().Str("capability", string(c)).Str("provider", p.Name()).
					Str("error", string(resp.Error)).Msg(resp.Message)
			}

			mu.Lock()
			result.Responses[c] = resp
			if hit {
				result.CacheHits[c] = true
			}
			mu.Unlock()
		}(c, p)
	}

	wg.Wait()

	result.Partial = isPartial(capabilities, result.Responses)
	return result
}

func (a *Aggregator) fetch(ctx context.Context, c Capability, p Provider, rc RequestContext) (ProviderResponse, bool) {
	call := func(fctx context.Context) ProviderResponse {
		return invoke(fctx, c, p, rc, a.budget, a.clock.NowUTC)
	}
	if a.cache == nil {
		return call(ctx), false
	}
	return a.cache.Load(ctx, c, a.cache.Key(c, rc), call)
}

func isPartial(requested []Capability, responses map[Capability]ProviderResponse) bool {
	for _, c := range requested {
		resp, ok := responses[c]
		if !ok || !resp.OK() {
			return true
		}
	}
	return false
}

func dedupe(in []Capability) []Capability {
	seen := make(map[Capability]struct{}, len(in))
	out := make([]Capability, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
