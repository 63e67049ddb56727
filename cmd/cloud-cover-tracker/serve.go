package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/cloud-cover-tracker/internal/api/http"
	"github.com/i474232898/cloud-cover-tracker/internal/scheduler"
)

var serveCollectOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily collection scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		sched := scheduler.New(env.Service, cfg.Locations, cfg.LeadDays, cfg.CollectAt)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		if serveCollectOnStart {
			if id, err := sched.Trigger(); err == nil {
				log.Info().Str("run_id", id).Msg("startup collection started")
			}
		}

		app := httpapi.NewApp("cloud-cover-tracker")
		app.Use(logger.New())
		app.Use(recover.New())

		httpapi.RegisterRoutes(app, httpapi.Deps{
			Store:          env.Store,
			Runner:         sched,
			Calls:          env.Calls,
			Providers:      env.Service.Providers(),
			Tolerance:      cfg.AccuracyTolerance,
			Threshold:      cfg.DiscrepancyThreshold,
			SunnyThreshold: cfg.SunnyThreshold,
		})

		go func() {
			log.Info().Str("port", cfg.Port).Msg("http server listening")
			if err := app.Listen(":" + cfg.Port); err != nil {
				log.Error().Err(err).Msg("fiber server stopped")
			}
		}()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveCollectOnStart, "collect-now", false, "start a collection run immediately")
}
