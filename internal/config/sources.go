package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mobilille/mobilille/internal/mobility"
	"github.com/mobilille/mobilille/internal/source"
)

// Built-in source names.
const (
	SourceSchedule      = "schedule"
	SourcePhysicalStops = "physical_stops"
	SourceRealtime      = "realtime"
	SourceMetroStations = "metro_stations"
	SourceVLille        = "vlille"
	SourceParking       = "parking"
	SourceSocial        = "social"
)

// SourceSpec describes one source in the catalogue.
type SourceSpec struct {
	Name     string        `yaml:"name" validate:"required"`
	Kind     string        `yaml:"kind" validate:"required,oneof=process file"`
	Format   string        `yaml:"format" validate:"omitempty,oneof=schedule physical_stops realtime metro_stations json"`
	Command  string        `yaml:"command" validate:"required_if=Kind process"`
	Args     []string      `yaml:"args"`
	Dir      string        `yaml:"dir"`
	Path     string        `yaml:"path" validate:"required_if=Kind file"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Catalogue is the root of the sources file.
type Catalogue struct {
	Sources []SourceSpec `yaml:"sources" validate:"required,min=1,dive"`
}

// DefaultCatalogue returns the built-in catalogue: the schedule producer
// and the six JSON files of the data directory.
func DefaultCatalogue(cfg Config) Catalogue {
	file := func(name, format, path string) SourceSpec {
		return SourceSpec{
			Name:     name,
			Kind:     string(source.KindFile),
			Format:   format,
			Path:     path,
			Interval: cfg.RefreshInterval,
		}
	}

	return Catalogue{Sources: []SourceSpec{
		{
			Name:     SourceSchedule,
			Kind:     string(source.KindProcess),
			Format:   mobility.FormatSchedule,
			Command:  cfg.ScheduleCommand,
			Args:     cfg.ScheduleArgs,
			Interval: cfg.RefreshInterval,
		},
		file(SourcePhysicalStops, mobility.FormatPhysicalStops, "physical_stop.json"),
		file(SourceRealtime, mobility.FormatRealtime, "prochains_passages.json"),
		file(SourceMetroStations, mobility.FormatMetroStations, "stations_metro.json"),
		file(SourceVLille, mobility.FormatJSON, "vlille_temps_reel.json"),
		file(SourceParking, mobility.FormatJSON, "parking.json"),
		file(SourceSocial, mobility.FormatJSON, "reseaux_sociaux.json"),
	}}
}

// LoadCatalogue reads and validates the catalogue at cfg.SourcesFile.
// When the file does not exist the built-in catalogue is returned.
func LoadCatalogue(cfg Config) (Catalogue, error) {
	data, err := os.ReadFile(cfg.SourcesFile)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCatalogue(cfg), nil
	}
	if err != nil {
		return Catalogue{}, fmt.Errorf("read sources file: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates a YAML catalogue.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalogue{}, fmt.Errorf("parse sources file: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cat); err != nil {
		return Catalogue{}, fmt.Errorf("validate sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(cat.Sources))
	for _, s := range cat.Sources {
		if _, dup := seen[s.Name]; dup {
			return Catalogue{}, fmt.Errorf("validate sources file: duplicate source %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return cat, nil
}

// Names returns the source names in catalogue order.
func (c Catalogue) Names() []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		names = append(names, s.Name)
	}
	return names
}

// Build creates the sources and their adapters. Relative file paths are
// resolved against dataDir.
func (c Catalogue) Build(dataDir string, logger zerolog.Logger) ([]source.Source, error) {
	out := make([]source.Source, 0, len(c.Sources))

	for _, spec := range c.Sources {
		dec, err := mobility.DecoderFor(spec.Format)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", spec.Name, err)
		}

		src := source.Source{
			Name:     spec.Name,
			Kind:     source.Kind(spec.Kind),
			Interval: spec.Interval,
			Timeout:  spec.Timeout,
		}

		switch src.Kind {
		case source.KindProcess:
			src.Adapter = source.NewProcessAdapter(source.ProcessConfig{
				Name:    spec.Name,
				Command: spec.Command,
				Args:    spec.Args,
				Dir:     spec.Dir,
				Decoder: dec,
				Logger:  logger.With().Str("source", spec.Name).Logger(),
			})
		case source.KindFile:
			path := spec.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(dataDir, path)
			}
			src.Adapter = source.NewFileAdapter(source.FileConfig{
				Name:    spec.Name,
				Path:    path,
				Decoder: dec,
			})
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", spec.Name, spec.Kind)
		}

		out = append(out, src)
	}

	return out, nil
}
