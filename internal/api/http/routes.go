package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, aggregator *advisory.Aggregator) {
	v1 := app.Group("/api/v1")

	v1.Get("/capabilities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"capabilities": aggregator.Registry().Capabilities(),
		})
	})

	v1.Get("/advisory", func(c *fiber.Ctx) error {
		var q advisoryQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rc, err := q.requestContext()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res := aggregator.Request(c.UserContext(), rc, q.Capabilities...)
		return c.JSON(toResultDTO(res))
	})

	v1.Delete("/advisory/cache", func(c *fiber.Ctx) error {
		cache := aggregator.Cache()
		if cache == nil {
			return fiber.NewError(fiber.StatusNotFound, "advisory cache is disabled")
		}

		var q advisoryQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rc, err := q.requestContext()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		capabilities := q.Capabilities
		if len(capabilities) == 0 {
			capabilities = advisory.AllCapabilities()
		}

		keys := make([]string, 0, len(capabilities))
		for _, capability := range capabilities {
			key := cache.Key(capability, rc)
			if err := cache.Invalidate(c.UserContext(), key); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, "failed to invalidate cached advisory")
			}
			keys = append(keys, key)
		}
		return c.JSON(fiber.Map{"invalidated": keys})
	})
}

// advisoryQuery holds query parameters identifying one advisory request.
type advisoryQuery struct {
	User         string
	Lat          *float64 `validate:"required,gte=-90,lte=90"`
	Lon          *float64 `validate:"required,gte=-180,lte=180"`
	Crop         string   `validate:"required"`
	Stage        string
	Image        string
	Capabilities []advisory.Capability
}

func (q *advisoryQuery) bind(c *fiber.Ctx) error {
	q.User = c.Query("user")
	q.Crop = strings.TrimSpace(c.Query("crop"))
	q.Stage = c.Query("stage")
	q.Image = c.Query("image")

	var err error
	if q.Lat, err = parseCoordinate(c.Query("lat")); err != nil {
		return errors.New("lat must be a number")
	}
	if q.Lon, err = parseCoordinate(c.Query("lon")); err != nil {
		return errors.New("lon must be a number")
	}

	if raw := c.Query("capabilities"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			capability, err := advisory.ParseCapability(name)
			if err != nil {
				return err
			}
			q.Capabilities = append(q.Capabilities, capability)
		}
	}

	return validate.Struct(q)
}

func (q *advisoryQuery) requestContext() (advisory.RequestContext, error) {
	return advisory.NewRequestContext(q.User, advisory.Coordinates{Lat: *q.Lat, Lon: *q.Lon}, q.Crop, q.Stage, q.Image)
}

// parseCoordinate returns nil for an empty parameter so validation reports it as missing.
func parseCoordinate(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// resultDTO renders an AggregateResult with request-level failures as text.
type resultDTO struct {
	RequestID string                                            `json:"requestId"`
	Context   advisory.RequestContext                           `json:"context"`
	Responses map[advisory.Capability]advisory.ProviderResponse `json:"responses"`
	Failures  map[advisory.Capability]string                    `json:"failures,omitempty"`
	CacheHits map[advisory.Capability]bool                      `json:"cacheHits,omitempty"`
	Partial   bool                                              `json:"partial"`
	ServedAt  time.Time                                         `json:"servedAt"`
}

func toResultDTO(res advisory.AggregateResult) resultDTO {
	dto := resultDTO{
		RequestID: res.RequestID,
		Context:   res.Context,
		Responses: res.Responses,
		CacheHits: res.CacheHits,
		Partial:   res.Partial,
		ServedAt:  time.Now().UTC(),
	}
	if len(res.Failures) > 0 {
		dto.Failures = make(map[advisory.Capability]string, len(res.Failures))
		for capability, err := range res.Failures {
			dto.Failures[capability] = err.Error()
		}
	}
	return dto
}
