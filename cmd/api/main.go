// Package main provides the entrypoint for the Mobilille server: it keeps
// every data source refreshed in the background and serves the joined
// views, the raw feeds and the pages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/api"
	"github.com/mobilille/mobilille/internal/api/handler"
	"github.com/mobilille/mobilille/internal/api/middleware"
	"github.com/mobilille/mobilille/internal/auth"
	"github.com/mobilille/mobilille/internal/config"
	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/telemetry"
	"github.com/mobilille/mobilille/internal/views"
	"github.com/mobilille/mobilille/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "mobilille-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting Mobilille")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Sources and their snapshot slots
	catalogue, err := config.LoadCatalogue(cfg)
	if err != nil {
		log.Error().Err(err).Str("sources_file", cfg.SourcesFile).Msg("failed to load source catalogue")
		os.Exit(1)
	}
	sources, err := catalogue.Build(cfg.DataDir, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build sources")
		os.Exit(1)
	}
	store := snapshot.NewStore(catalogue.Names()...)

	registration, err := telemetry.ObserveSnapshots(tp.Meter, store, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to register snapshot gauges")
		os.Exit(1)
	}
	defer func() { _ = registration.Unregister() }() //nolint:errcheck // shutdown path

	scheduler, err := worker.NewScheduler(worker.SchedulerConfig{
		Sources: sources,
		Store:   store,
		Logger:  log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create scheduler")
		os.Exit(1)
	}
	scheduler.Start(ctx)

	facade := buildViews(store, log)

	// Admin endpoints are only served with a signing key
	var jwtService *auth.JWTService
	if cfg.AdminJWTKey != "" {
		jwtService = auth.NewJWTService(auth.JWTConfig{SigningKey: cfg.AdminJWTKey})
		log.Info().Msg("admin endpoints enabled")
	}

	// Optional refresh triggers from Pub/Sub
	if cfg.PubSubEnabled() {
		ps, psErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Refresher:        scheduler,
			Logger:           log,
		})
		if psErr != nil {
			log.Error().Err(psErr).Msg("failed to create pubsub handler")
			os.Exit(1)
		}
		defer func() { _ = ps.Close() }() //nolint:errcheck // shutdown path

		go func() {
			if err := ps.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Views:       facade,
		Store:       store,
		Scheduler:   scheduler,
		JWT:         jwtService,
		CORSOrigins: cfg.CORSOrigins,
		RequireTLS:  cfg.RequireTLS,
		FrontendDir: cfg.FrontendDir,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	scheduler.Wait()
	log.Info().Msg("server stopped")
}

// buildViews registers the served views. A view whose sources are missing
// from the catalogue is skipped.
func buildViews(store *snapshot.Store, log zerolog.Logger) *views.Facade {
	has := func(names ...string) bool {
		for _, name := range names {
			if _, ok := store.Get(name); !ok {
				return false
			}
		}
		return true
	}

	var vs []views.View

	joined := views.JoinedSources{
		Schedule:      config.SourceSchedule,
		PhysicalStops: config.SourcePhysicalStops,
		Realtime:      config.SourceRealtime,
	}
	if has(joined.Schedule, joined.PhysicalStops, joined.Realtime) {
		vs = append(vs, views.NewJoined(handler.ViewMatchedStops, joined, store))
	} else {
		log.Warn().Str("view", handler.ViewMatchedStops).Msg("view disabled, sources missing from catalogue")
	}

	passthrough := []struct{ view, source string }{
		{handler.ViewSchedule, config.SourceSchedule},
		{handler.ViewMetroStations, config.SourceMetroStations},
		{handler.ViewVLille, config.SourceVLille},
		{handler.ViewParking, config.SourceParking},
		{handler.ViewSocial, config.SourceSocial},
	}
	for _, p := range passthrough {
		if !has(p.source) {
			log.Warn().Str("view", p.view).Str("source", p.source).Msg("view disabled, source missing from catalogue")
			continue
		}
		vs = append(vs, views.NewPassthrough(p.view, p.source, store))
	}

	return views.NewFacade(vs...)
}
