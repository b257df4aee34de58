package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
)

// Sweeper drops expired cache entries.
type Sweeper interface {
	Sweep() int
}

// WarmCapabilities are pre-fetched for every farm. Pest diagnosis needs a
// leaf image and is never warmed.
var WarmCapabilities = []advisory.Capability{
	advisory.CapabilityWeather,
	advisory.CapabilitySoilHealth,
	advisory.CapabilityIrrigation,
	advisory.CapabilityMarketPrice,
}

// Scheduler periodically warms the advisory cache for configured farms
// and sweeps expired entries.
type Scheduler struct {
	scheduler     *gocron.Scheduler
	aggregator    *advisory.Aggregator
	farms         []advisory.RequestContext
	sweeper       Sweeper
	warmInterval  time.Duration
	sweepInterval time.Duration
}

// New creates a new Scheduler. A nil sweeper disables the sweep job.
func New(aggregator *advisory.Aggregator, farms []advisory.RequestContext, sweeper Sweeper, warmInterval, sweepInterval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:     s,
		aggregator:    aggregator,
		farms:         farms,
		sweeper:       sweeper,
		warmInterval:  warmInterval,
		sweepInterval: sweepInterval,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	jobs := 0

	if len(s.farms) == 0 {
		log.Info().Msg("scheduler: no farms configured; cache warm-up disabled")
	} else {
		interval := s.warmInterval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		if _, err := s.scheduler.Every(interval).SingletonMode().Do(func() {
			s.WarmOnce(context.Background())
		}); err != nil {
			return err
		}
		jobs++
	}

	if s.sweeper != nil && s.sweepInterval > 0 {
		if _, err := s.scheduler.Every(s.sweepInterval).WaitForSchedule().Do(func() {
			if n := s.sweeper.Sweep(); n > 0 {
				log.Debug().Int("entries", n).Msg("scheduler: swept expired cache entries")
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	s.scheduler.StartAsync()
	return nil
}

// WarmOnce requests WarmCapabilities for every farm concurrently.
func (s *Scheduler) WarmOnce(ctx context.Context) {
	log.Info().Int("farms", len(s.farms)).Msg("scheduler: running cache warm-up job")

	var wg sync.WaitGroup
	for _, farm := range s.farms {
		wg.Add(1)
		go func(farm advisory.RequestContext) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			res := s.aggregator.Request(ctx, farm, WarmCapabilities...)
			if res.Partial {
				log.Warn().Str("crop", farm.Crop).Stringer("location", farm.Location).
					Msg("scheduler: warm-up incomplete")
			}
		}(farm)
	}
	wg.Wait()
	log.Info().Msg("scheduler: completed cache warm-up job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
