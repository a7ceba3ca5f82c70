// Package main provides the schedule producer. It prints one JSON schedule
// document to stdout and exits; diagnostics go to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/config"
	"github.com/mobilille/mobilille/internal/provider/resilience"
	"github.com/mobilille/mobilille/internal/tripfeed"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	log := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("service", "mobilille-tripfeed").
		Str("version", Version).
		Logger().
		Level(zerolog.WarnLevel)

	cfg, err := config.LoadTripFeed()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	clientCfg := resilience.DefaultClientConfig("gtfs-rt")
	clientCfg.UserAgent = "mobilille-tripfeed/" + Version

	producer := tripfeed.NewProducer(tripfeed.ProducerConfig{
		FeedURL:    cfg.FeedURL,
		FeedFile:   cfg.FeedFile,
		StaticGTFS: cfg.StaticGTFS,
		Location:   cfg.Location,
		Client:     resilience.NewClient(clientCfg),
		Logger:     log,
	})

	if err := producer.Run(ctx, os.Stdout); err != nil {
		log.Error().Err(err).Msg("failed to produce schedule document")
		cancel()
		os.Exit(1) //nolint:gocritic // deferred cancel already run
	}
}
