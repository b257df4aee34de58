package advisory

import "errors"

var (
	// ErrUnregisteredCapability is returned when no provider is bound to a capability.
	ErrUnregisteredCapability = errors.New("unregistered capability")
	// ErrProviderTimeout marks a provider that did not answer within its budget.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderFailure marks a provider that failed or panicked.
	ErrProviderFailure = errors.New("provider internal failure")
	// ErrEmptyPayload marks a provider that reported success without data.
	ErrEmptyPayload = errors.New("provider returned empty payload")
	// ErrCacheUnavailable is returned by cache backends that cannot serve requests.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrInvalidRequest marks malformed request input.
	ErrInvalidRequest = errors.New("invalid advisory request")
)
