// Package worker runs the background refresh of every data source.
package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/source"
)

// DefaultStaleFactor is the number of missed intervals after which a
// source is reported stale.
const DefaultStaleFactor = 3

// SchedulerConfig holds configuration for creating a Scheduler.
type SchedulerConfig struct {
	// Sources are the sources to refresh. Names must be unique.
	Sources []source.Source

	// Store receives fetch results. It must have a slot for every source.
	Store *snapshot.Store

	// Logger is the base logger; each source gets a "source" field.
	Logger zerolog.Logger

	// StaleFactor multiplies a source's interval to get its stale threshold.
	// Default: 3
	StaleFactor int

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

func (c *SchedulerConfig) validate() error {
	if c.Store == nil {
		return errors.New("scheduler: store is required")
	}
	if len(c.Sources) == 0 {
		return errors.New("scheduler: no sources configured")
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return errors.New("scheduler: source with empty name")
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("scheduler: duplicate source %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		if src.Adapter == nil {
			return fmt.Errorf("scheduler: source %q has no adapter", src.Name)
		}
		if _, ok := c.Store.Get(src.Name); !ok {
			return fmt.Errorf("scheduler: source %q: %w", src.Name, snapshot.ErrUnknownSource)
		}
	}

	if c.StaleFactor <= 0 {
		c.StaleFactor = DefaultStaleFactor
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}
