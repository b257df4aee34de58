package advisory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capability identifies which provider family answers a request.
type Capability string

const (
	CapabilityWeather       Capability = "weather"
	CapabilityPestDiagnosis Capability = "pest_diagnosis"
	CapabilitySoilHealth    Capability = "soil_health"
	CapabilityIrrigation    Capability = "irrigation"
	CapabilityMarketPrice   Capability = "market_price"
)

var allCapabilities = []Capability{
	CapabilityWeather,
	CapabilityPestDiagnosis,
	CapabilitySoilHealth,
	CapabilityIrrigation,
	CapabilityMarketPrice,
}

// AllCapabilities returns every known capability in menu order.
func AllCapabilities() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	for _, known := range allCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCapability maps a case-insensitive name to a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown capability %q", ErrInvalidRequest, s)
	}
	return c, nil
}

// Coordinates is a GPS position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", c.Lat, c.Lon)
}

// RequestContext carries one advisory request through the engine.
// It is passed by value and never mutated after construction.
type RequestContext struct {
	UserID    string      `json:"userId"`
	Location  Coordinates `json:"location"`
	Crop      string      `json:"crop"`
	CropStage string      `json:"cropStage,omitempty"`

	// ImageRef points at the leaf photo used for pest diagnosis.
	ImageRef string `json:"imageRef,omitempty"`
}

// NewRequestContext validates the inputs and fills in a user id when none is given.
func NewRequestContext(userID string, loc Coordinates, crop, stage, imageRef string) (RequestContext, error) {
	if loc.Lat < -90 || loc.Lat > 90 {
		return RequestContext{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidRequest, loc.Lat)
	}
	if loc.Lon < -180 || loc.Lon > 180 {
		return RequestContext{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidRequest, loc.Lon)
	}
	crop = strings.TrimSpace(crop)
	if crop == "" {
		return RequestContext{}, fmt.Errorf("%w: crop is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(userID) == "" {
		userID = uuid.NewString()
	}
	return RequestContext{
		UserID:    userID,
		Location:  loc,
		Crop:      crop,
		CropStage: strings.TrimSpace(stage),
		ImageRef:  strings.TrimSpace(imageRef),
	}, nil
}

// Payload holds provider-specific named fields.
type Payload map[string]any

// ErrorKind classifies why a ProviderResponse is degraded.
type ErrorKind string

const (
	ErrorNone            ErrorKind = ""
	ErrorTimeout         ErrorKind = "timeout"
	ErrorInternalFailure ErrorKind = "internal_failure"
	ErrorCancelled       ErrorKind = "cancelled"
)

// ProviderResponse is the outcome of one provider call, successful or not.
type ProviderResponse struct {
	Capability Capability `json:"capability"`
	Provider   string     `json:"provider"`
	ProducedAt time.Time  `json:"producedAt"` // always UTC
	Payload    Payload    `json:"payload,omitempty"`
	Degraded   bool       `json:"degraded"`
	Error      ErrorKind  `json:"error,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// OK reports whether the response carries a full answer.
func (r ProviderResponse) OK() bool {
	return !r.Degraded && r.Error == ErrorNone && len(r.Payload) > 0
}

func degraded(c Capability, provider string, kind ErrorKind, at time.Time, err error) ProviderResponse {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ProviderResponse{
		Capability: c,
		Provider:   provider,
		ProducedAt: at,
		Degraded:   true,
		Error:      kind,
		Message:    msg,
	}
}

// AggregateResult is the merged answer for one RequestContext.
type AggregateResult struct {
	RequestID string                          `json:"requestId"`
	Context   RequestContext                  `json:"context"`
	Responses map[Capability]ProviderResponse `json:"responses"`

	// Failures holds capabilities that could not be attempted at all,
	// e.g. because no provider is registered for them.
	Failures map[Capability]error `json:"-"`

	CacheHits map[Capability]bool `json:"cacheHits,omitempty"`
	Partial   bool                `json:"partial"`
}

// Err returns the request-level error recorded for c, if any.
func (r AggregateResult) Err(c Capability) error {
	return r.Failures[c]
}
