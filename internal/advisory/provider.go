package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultProviderBudget bounds a provider call when neither the provider
// nor the aggregator configuration says otherwise.
const DefaultProviderBudget = 5 * time.Second

// Provider abstracts an advisory data source (weather API, CV model, market feed).
type Provider interface {
	Name() string
	Capability() Capability
	Fetch(ctx context.Context, rc RequestContext) (Payload, error)
}

// Budgeted is implemented by providers that need a budget other than the default.
type Budgeted interface {
	Budget() time.Duration
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc struct {
	ProviderName string
	Cap          Capability
	Fn           func(ctx context.Context, rc RequestContext) (Payload, error)
}

func (p ProviderFunc) Name() string           { return p.ProviderName }
func (p ProviderFunc) Capability() Capability { return p.Cap }

func (p ProviderFunc) Fetch(ctx context.Context, rc RequestContext) (Payload, error) {
	return p.Fn(ctx, rc)
}

type fetchOutcome struct {
	payload Payload
	err     error
}

// invoke runs p.Fetch for capability c under budget and always returns a ProviderResponse.
// Errors, panics, empty payloads and overruns come back as degraded responses.
func invoke(ctx context.Context, c Capability, p Provider, rc RequestContext, budget time.Duration, now func() time.Time) ProviderResponse {
	if b, ok := p.(Budgeted); ok && b.Budget() > 0 {
		budget = b.Budget()
	}
	if budget <= 0 {
		budget = DefaultProviderBudget
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: fmt.Errorf("%w: panic: %v", ErrProviderFailure, r)}
			}
		}()
		payload, err := p.Fetch(ctx, rc)
		done <- fetchOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case errors.Is(out.err, context.DeadlineExceeded):
			return degraded(c, p.Name(), ErrorTimeout, now(), fmt.Errorf("%s: %w after %s", p.Name(), ErrProviderTimeout, budget))
		case errors.Is(out.err, context.Canceled):
			return degraded(c, p.Name(), ErrorCancelled, now(), fmt.Errorf("%s: %w", p.Name(), out.err))
		case out.err != nil:
			return degraded(c, p.Name(), ErrorInternalFailure, now(), fmt.Errorf("%s: %w", p.Name(), out.err))
		case len(out.payload) == 0:
			return degraded(c, p.Name(), ErrorInternalFailure, now(), fmt.Errorf("%s: %w", p.Name(), ErrEmptyPayload))
		}
		return ProviderResponse{
			Capability: c,
			Provider:   p.Name(),
			ProducedAt: now(),
			Payload:    out.payload,
		}
	case <-ctx.Done():
		// The provider goroutine may still be running; its result is discarded.
		if errors.Is(ctx.Err(), context.Canceled) {
			return degraded(c, p.Name(), ErrorCancelled, now(), fmt.Errorf("%s: %w", p.Name(), ctx.Err()))
		}
		return degraded(c, p.Name(), ErrorTimeout, now(), fmt.Errorf("%s: %w after %s", p.Name(), ErrProviderTimeout, budget))
	}
}
