// Package config loads process configuration from the environment and the
// source catalogue from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level

	OTelEnabled  bool
	OTLPEndpoint string

	// SourcesFile is the YAML source catalogue. A missing file selects the
	// built-in catalogue.
	SourcesFile string

	// DataDir is the directory relative file sources are resolved against.
	DataDir string

	// FrontendDir holds the static pages and assets.
	FrontendDir string

	// ScheduleCommand and ScheduleArgs run the schedule producer.
	ScheduleCommand string
	ScheduleArgs    []string

	// RefreshInterval is the default interval of built-in sources.
	RefreshInterval time.Duration

	// AdminJWTKey enables the admin endpoints when set.
	AdminJWTKey string

	PubSubProjectID    string
	PubSubSubscription string

	CORSOrigins []string

	// RequireTLS rejects plain HTTP requests that did not come through a
	// TLS-terminating proxy.
	RequireTLS bool
}

// Load reads a .env file when present, then builds the Config from the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	return FromEnv()
}

// FromEnv builds the Config from environment variables.
func FromEnv() (Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	interval, err := time.ParseDuration(getEnvOrDefault("REFRESH_INTERVAL", "30s"))
	if err != nil || interval <= 0 {
		return Config{}, fmt.Errorf("invalid REFRESH_INTERVAL: %q", os.Getenv("REFRESH_INTERVAL"))
	}

	otelEnabled, err := strconv.ParseBool(getEnvOrDefault("OTEL_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	requireTLS, err := strconv.ParseBool(getEnvOrDefault("REQUIRE_TLS", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REQUIRE_TLS: %w", err)
	}

	return Config{
		Port:               getEnvOrDefault("APP_PORT", "3000"),
		Environment:        getEnvOrDefault("APP_ENV", "development"),
		LogLevel:           level,
		OTelEnabled:        otelEnabled,
		OTLPEndpoint:       getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SourcesFile:        getEnvOrDefault("SOURCES_FILE", "sources.yml"),
		DataDir:            getEnvOrDefault("DATA_DIR", "data"),
		FrontendDir:        getEnvOrDefault("FRONTEND_DIR", "frontend"),
		ScheduleCommand:    getEnvOrDefault("SCHEDULE_COMMAND", "tripfeed"),
		ScheduleArgs:       strings.Fields(os.Getenv("SCHEDULE_ARGS")),
		RefreshInterval:    interval,
		AdminJWTKey:        os.Getenv("ADMIN_JWT_KEY"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		CORSOrigins:        splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		RequireTLS:         requireTLS,
	}, nil
}

// PubSubEnabled reports whether a refresh subscription is configured.
func (c Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

// TripFeedConfig holds the schedule producer configuration.
type TripFeedConfig struct {
	// FeedURL is the GTFS-RT TripUpdates endpoint.
	FeedURL string

	// FeedFile is a local GTFS-RT file used instead of FeedURL.
	FeedFile string

	// StaticGTFS is the static GTFS zip holding stop metadata.
	StaticGTFS string

	// Location is the zone arrival and departure times are rendered in.
	Location *time.Location

	// Timeout bounds the whole fetch.
	Timeout time.Duration
}

// LoadTripFeed reads a .env file when present, then builds the
// TripFeedConfig from the environment.
func LoadTripFeed() (TripFeedConfig, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	return TripFeedFromEnv()
}

// TripFeedFromEnv builds the TripFeedConfig from environment variables.
func TripFeedFromEnv() (TripFeedConfig, error) {
	cfg := TripFeedConfig{
		FeedURL:    os.Getenv("TRIPFEED_RT_URL"),
		FeedFile:   os.Getenv("TRIPFEED_RT_FILE"),
		StaticGTFS: getEnvOrDefault("TRIPFEED_STATIC_GTFS", "data/gtfs.zip"),
	}
	if cfg.FeedURL == "" && cfg.FeedFile == "" {
		return TripFeedConfig{}, errors.New("TRIPFEED_RT_URL or TRIPFEED_RT_FILE must be set")
	}

	loc, err := time.LoadLocation(getEnvOrDefault("TRIPFEED_TIMEZONE", "Europe/Paris"))
	if err != nil {
		return TripFeedConfig{}, fmt.Errorf("invalid TRIPFEED_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	timeout, err := time.ParseDuration(getEnvOrDefault("TRIPFEED_TIMEOUT", "20s"))
	if err != nil || timeout <= 0 {
		return TripFeedConfig{}, fmt.Errorf("invalid TRIPFEED_TIMEOUT: %q", os.Getenv("TRIPFEED_TIMEOUT"))
	}
	cfg.Timeout = timeout

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
