package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/source"
	"github.com/mobilille/mobilille/internal/worker"
)

// mockAdapter is a source adapter with scripted results.
type mockAdapter struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	delay       time.Duration
	block       chan struct{}
	results     []error
}

func (m *mockAdapter) Fetch(ctx context.Context) (any, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	block := m.block
	delay := m.delay
	var result error
	if call <= len(m.results) {
		result = m.results[call-1]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if result != nil {
		return nil, result
	}
	return json.RawMessage(`{"call":` + itoa(call) + `}`), nil
}

func (m *mockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockAdapter) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func itoa(n int) string {
	b, _ := json.Marshal(n) //nolint:errcheck // ints always marshal
	return string(b)
}

func newScheduler(t *testing.T, sources ...source.Source) (*worker.Scheduler, *snapshot.Store) {
	t.Helper()

	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.Name)
	}
	store := snapshot.NewStore(names...)

	s, err := worker.NewScheduler(worker.SchedulerConfig{
		Sources: sources,
		Store:   store,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, store
}

func start(t *testing.T, s *worker.Scheduler) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
}

func TestNewScheduler_Validation(t *testing.T) {
	adapter := &mockAdapter{}
	store := snapshot.NewStore("a")

	tests := []struct {
		name string
		cfg  worker.SchedulerConfig
	}{
		{"no store", worker.SchedulerConfig{Sources: []source.Source{{Name: "a", Adapter: adapter}}}},
		{"no sources", worker.SchedulerConfig{Store: store}},
		{"empty name", worker.SchedulerConfig{Store: store, Sources: []source.Source{{Adapter: adapter}}}},
		{"no adapter", worker.SchedulerConfig{Store: store, Sources: []source.Source{{Name: "a"}}}},
		{"duplicate", worker.SchedulerConfig{Store: store, Sources: []source.Source{
			{Name: "a", Adapter: adapter}, {Name: "a", Adapter: adapter},
		}}},
		{"no slot", worker.SchedulerConfig{Store: store, Sources: []source.Source{{Name: "b", Adapter: adapter}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := worker.NewScheduler(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestScheduler_FirstFetchIsImmediate(t *testing.T) {
	adapter := &mockAdapter{}
	s, store := newScheduler(t, source.Source{Name: "parking", Interval: time.Hour, Adapter: adapter})
	start(t, s)

	require.Eventually(t, func() bool {
		snap, _ := store.Get("parking")
		return snap.Ready()
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, adapter.Calls())
}

func TestScheduler_RefreshesOnInterval(t *testing.T) {
	adapter := &mockAdapter{}
	s, _ := newScheduler(t, source.Source{Name: "realtime", Interval: 20 * time.Millisecond, Adapter: adapter})
	start(t, s)

	require.Eventually(t, func() bool { return adapter.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_FailureKeepsLastGoodData(t *testing.T) {
	adapter := &mockAdapter{results: []error{nil, errors.New("exit status 1")}}
	s, store := newScheduler(t, source.Source{Name: "schedule", Interval: time.Hour, Adapter: adapter})
	start(t, s)

	require.Eventually(t, func() bool {
		snap, _ := store.Get("schedule")
		return snap.Ready()
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Trigger("schedule"))
	require.Eventually(t, func() bool {
		snap, _ := store.Get("schedule")
		return snap.LastError != nil
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ := store.Get("schedule")
	assert.Equal(t, json.RawMessage(`{"call":1}`), snap.Payload)
	assert.False(t, snap.LastUpdated.IsZero())

	// The next refresh succeeds and clears the error.
	require.NoError(t, s.Trigger("schedule"))
	require.Eventually(t, func() bool {
		snap, _ := store.Get("schedule")
		return snap.LastError == nil && adapter.Calls() == 3
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ = store.Get("schedule")
	assert.Equal(t, json.RawMessage(`{"call":3}`), snap.Payload)

	require.Eventually(t, func() bool {
		m, _ := s.GetMetrics("schedule")
		return m.Refreshes == 3
	}, 2*time.Second, 5*time.Millisecond)

	m, ok := s.GetMetrics("schedule")
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Failures)
}

func TestScheduler_NeverFetchesConcurrently(t *testing.T) {
	adapter := &mockAdapter{delay: 30 * time.Millisecond}
	s, _ := newScheduler(t, source.Source{Name: "schedule", Interval: 5 * time.Millisecond, Adapter: adapter})
	start(t, s)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Trigger("schedule"))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return adapter.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, adapter.MaxInFlight())
}

func TestScheduler_TriggersCoalesce(t *testing.T) {
	adapter := &mockAdapter{block: make(chan struct{})}
	s, _ := newScheduler(t, source.Source{Name: "vlille", Interval: time.Hour, Adapter: adapter})
	start(t, s)

	require.Eventually(t, func() bool { return adapter.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Trigger("vlille"))
	}
	close(adapter.block)

	require.Eventually(t, func() bool { return adapter.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, adapter.Calls())

	m, _ := s.GetMetrics("vlille")
	assert.Equal(t, int64(1), m.Triggered)
}

func TestScheduler_TimeoutIsolatesSource(t *testing.T) {
	hung := &mockAdapter{block: make(chan struct{})}
	healthy := &mockAdapter{}
	s, store := newScheduler(t,
		source.Source{Name: "schedule", Interval: time.Hour, Timeout: 50 * time.Millisecond, Adapter: hung},
		source.Source{Name: "parking", Interval: 20 * time.Millisecond, Adapter: healthy},
	)
	start(t, s)

	require.Eventually(t, func() bool { return healthy.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, _ := store.Get("schedule")
		return snap.LastError != nil
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ := store.Get("schedule")
	assert.ErrorIs(t, snap.LastError, context.DeadlineExceeded)
	assert.False(t, snap.Ready())
}

func TestScheduler_TriggerUnknownSource(t *testing.T) {
	s, _ := newScheduler(t, source.Source{Name: "parking", Adapter: &mockAdapter{}})

	err := s.Trigger("metro")
	assert.ErrorIs(t, err, snapshot.ErrUnknownSource)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	adapter := &mockAdapter{block: make(chan struct{})}
	s, store := newScheduler(t, source.Source{Name: "parking", Interval: time.Hour, Adapter: adapter})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return adapter.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	snap, _ := store.Get("parking")
	assert.NoError(t, snap.LastError, "fetches cut short by shutdown are not recorded")
}

func TestScheduler_StaleAfterAndMetricsSnapshot(t *testing.T) {
	src := source.Source{Name: "parking", Interval: 10 * time.Second, Adapter: &mockAdapter{}}
	s, _ := newScheduler(t, src)

	assert.Equal(t, 30*time.Second, s.StaleAfter(src))
	assert.Len(t, s.Sources(), 1)

	snap := s.MetricsSnapshot()
	require.Contains(t, snap, "parking")
	assert.Contains(t, snap["parking"], "refreshes")
	assert.Contains(t, snap["parking"], "last_refresh_duration")
}
