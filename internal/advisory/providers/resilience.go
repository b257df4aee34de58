package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used by HTTP-backed providers unless overridden.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// resilientClient wraps an http.Client with one circuit breaker per upstream
// and bounded retries.
type resilientClient struct {
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

func newResilientClient(name string, client *http.Client, backoff BackoffConfig) *resilientClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &resilientClient{client: client, backoff: backoff, circuit: cb}
}

// do sends the request built by buildRequest, retrying throttled, 5xx and
// transport failures with capped exponential backoff. Client errors, an open
// breaker and an ended ctx stop the loop immediately.
func (c *resilientClient) do(ctx context.Context, buildRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.client == nil {
		return nil, errNoHTTPClient
	}
	if c.backoff.MaxRetries < 0 || c.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.attempt(req)
		switch {
		case err == nil:
			return resp, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		case errors.Is(err, errUnexpected), retry >= c.backoff.MaxRetries:
			return nil, err
		}

		timer := time.NewTimer(c.delay(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt sends req once through the breaker. Only 2xx responses are
// returned; any other body is drained and closed here.
func (c *resilientClient) attempt(req *http.Request) (*http.Response, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if statusErr := classifyStatus(resp.StatusCode); statusErr != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, statusErr
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// classifyStatus maps a status code to nil (success), a retryable error or errUnexpected.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return errRateLimited
	case code >= 500:
		return errServerError
	default:
		return fmt.Errorf("%w: %d", errUnexpected, code)
	}
}

// delay is the wait before retry n (0-based), doubling up to MaxInterval.
func (c *resilientClient) delay(n int) time.Duration {
	d := c.backoff.InitialInterval << n
	if d <= 0 || (c.backoff.MaxInterval > 0 && d > c.backoff.MaxInterval) {
		return c.backoff.MaxInterval
	}
	return d
}
