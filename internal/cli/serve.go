package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/agrilocal/advisory-aggregation/internal/api/http"
	"github.com/agrilocal/advisory-aggregation/internal/geo"
	"github.com/agrilocal/advisory-aggregation/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advisory HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("closing cache backend")
		}
	}()

	// Geocoding is only needed for farms configured by place name.
	var resolver geo.Resolver
	if a.Config.GeocoderAPIKey != "" {
		resolver = geo.NewGoogleResolver(a.Config.GeocoderAPIKey)
	}

	// Scheduler that keeps the cache warm for configured farms.
	sched := scheduler.New(a.Aggregator, a.Farms(resolver), a.Sweeper, a.Config.WarmInterval, a.Config.SweepInterval)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	app := newServer()
	httpapi.RegisterRoutes(app, a.Aggregator)

	go func() {
		if err := app.Listen(":" + a.Config.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", a.Config.Port).Msg("advisory API listening")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}

func newServer() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "agrilocal",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "agrilocal",
			"version": version,
		})
	})
	return app
}
