package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/source"
)

const meterName = "github.com/mobilille/mobilille/internal/worker"

// Scheduler refreshes every source on its own fixed interval.
//
// Each source is driven by a single goroutine, so a source's adapter is
// never invoked concurrently with itself and its snapshot slot has a single
// writer. A slow or failing source never delays another one.
type Scheduler struct {
	sources     []source.Source
	store       *snapshot.Store
	logger      zerolog.Logger
	staleFactor int
	now         func() time.Time

	triggers map[string]chan struct{}
	metrics  *RefreshMetrics

	refreshTotal    metric.Int64Counter
	refreshDuration metric.Float64Histogram

	wg sync.WaitGroup
}

// RefreshMetrics tracks refresh statistics per source.
type RefreshMetrics struct {
	mu      sync.RWMutex
	sources map[string]*SourceMetrics
}

// SourceMetrics holds refresh statistics for one source.
type SourceMetrics struct {
	Refreshes           int64
	Failures            int64
	Triggered           int64
	LastAttemptAt       time.Time
	LastRefreshDuration time.Duration
}

// NewScheduler creates a scheduler. Sources are not fetched until Start.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	meter := otel.Meter(meterName)
	refreshTotal, err := meter.Int64Counter(
		"source.refresh.total",
		metric.WithDescription("Total number of source refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh counter: %w", err)
	}
	refreshDuration, err := meter.Float64Histogram(
		"source.refresh.duration",
		metric.WithDescription("Duration of source refreshes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh histogram: %w", err)
	}

	s := &Scheduler{
		sources:         append([]source.Source(nil), cfg.Sources...),
		store:           cfg.Store,
		logger:          cfg.Logger,
		staleFactor:     cfg.StaleFactor,
		now:             cfg.Now,
		triggers:        make(map[string]chan struct{}, len(cfg.Sources)),
		metrics:         &RefreshMetrics{sources: make(map[string]*SourceMetrics, len(cfg.Sources))},
		refreshTotal:    refreshTotal,
		refreshDuration: refreshDuration,
	}
	for _, src := range s.sources {
		s.triggers[src.Name] = make(chan struct{}, 1)
		s.metrics.sources[src.Name] = &SourceMetrics{}
	}
	return s, nil
}

// Start launches one refresh loop per source. The first fetch of every
// source starts immediately. Loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Int("sources", len(s.sources)).Msg("starting source refresh")

	for _, src := range s.sources {
		s.wg.Add(1)
		go func(src source.Source) {
			defer s.wg.Done()
			s.run(ctx, src)
		}(src)
	}
}

// Wait blocks until every refresh loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Trigger queues an immediate refresh of a source. At most one triggered
// refresh is pending per source; extra triggers are coalesced. The refresh
// runs in the source's own loop, after any fetch in progress.
func (s *Scheduler) Trigger(name string) error {
	ch, ok := s.triggers[name]
	if !ok {
		return fmt.Errorf("trigger %s: %w", name, snapshot.ErrUnknownSource)
	}

	select {
	case ch <- struct{}{}:
		s.metrics.record(name, func(m *SourceMetrics) { m.Triggered++ })
	default:
	}
	return nil
}

// TriggerAll queues an immediate refresh of every source.
func (s *Scheduler) TriggerAll() {
	for _, src := range s.sources {
		_ = s.Trigger(src.Name) //nolint:errcheck // names come from the scheduler itself
	}
}

// Sources returns the scheduled sources.
func (s *Scheduler) Sources() []source.Source {
	return append([]source.Source(nil), s.sources...)
}

// StaleAfter returns the age after which a source's payload is reported stale.
func (s *Scheduler) StaleAfter(src source.Source) time.Duration {
	return time.Duration(s.staleFactor) * src.RefreshInterval()
}

func (s *Scheduler) run(ctx context.Context, src source.Source) {
	logger := s.logger.With().Str("source", src.Name).Logger()

	ticker := backoff.NewTicker(backoff.WithContext(backoff.NewConstantBackOff(src.RefreshInterval()), ctx))
	defer ticker.Stop()

	trigger := s.triggers[src.Name]

	logger.Debug().
		Str("kind", string(src.Kind)).
		Dur("interval", src.RefreshInterval()).
		Dur("timeout", src.FetchTimeout()).
		Msg("source refresh loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("source refresh loop stopped")
			return
		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			s.refresh(ctx, src, logger)
		case <-trigger:
			logger.Info().Msg("triggered refresh")
			s.refresh(ctx, src, logger)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, src source.Source, logger zerolog.Logger) {
	startTime := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, src.FetchTimeout())
	payload, err := src.Adapter.Fetch(fetchCtx)
	cancel()

	duration := time.Since(startTime)

	// Results of fetches cut short by shutdown are not recorded.
	if err != nil && ctx.Err() != nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		if setErr := s.store.SetError(src.Name, err, s.now()); setErr != nil {
			logger.Error().Err(setErr).Msg("failed to record fetch error")
		}
		logger.Error().
			Err(err).
			Dur("duration", duration).
			Msg("source refresh failed, keeping last good data")
	} else if setErr := s.store.Set(src.Name, payload, s.now()); setErr != nil {
		outcome = "failure"
		logger.Error().Err(setErr).Msg("failed to commit payload")
	} else {
		logger.Debug().
			Dur("duration", duration).
			Msg("source refreshed")
	}

	s.metrics.record(src.Name, func(m *SourceMetrics) {
		m.Refreshes++
		if outcome == "failure" {
			m.Failures++
		}
		m.LastAttemptAt = startTime
		m.LastRefreshDuration = duration
	})

	attrs := metric.WithAttributes(
		attribute.String("source", src.Name),
		attribute.String("outcome", outcome),
	)
	s.refreshTotal.Add(ctx, 1, attrs)
	s.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("source", src.Name)))
}

func (m *RefreshMetrics) record(name string, fn func(*SourceMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sm, ok := m.sources[name]; ok {
		fn(sm)
	}
}

// GetMetrics returns a copy of the metrics of one source.
func (s *Scheduler) GetMetrics(name string) (SourceMetrics, bool) {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	sm, ok := s.metrics.sources[name]
	if !ok {
		return SourceMetrics{}, false
	}
	return *sm, true
}

// MetricsSnapshot returns the metrics of every source as a map.
func (s *Scheduler) MetricsSnapshot() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	names := make([]string, 0, len(s.metrics.sources))
	for name := range s.metrics.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		m := s.metrics.sources[name]
		out[name] = map[string]interface{}{
			"refreshes":             m.Refreshes,
			"failures":              m.Failures,
			"triggered":             m.Triggered,
			"last_attempt_at":       m.LastAttemptAt,
			"last_refresh_duration": m.LastRefreshDuration.String(),
		}
	}
	return out
}
