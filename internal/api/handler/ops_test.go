package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilille/mobilille/internal/api/handler"
	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/source"
	"github.com/mobilille/mobilille/internal/worker"
)

type fakeMonitor struct {
	sources []source.Source
	metrics map[string]worker.SourceMetrics
}

func (m *fakeMonitor) Sources() []source.Source { return m.sources }

func (m *fakeMonitor) GetMetrics(name string) (worker.SourceMetrics, bool) {
	sm, ok := m.metrics[name]
	return sm, ok
}

func (m *fakeMonitor) StaleAfter(src source.Source) time.Duration {
	return worker.DefaultStaleFactor * src.RefreshInterval()
}

type fakePending []string

func (p fakePending) Pending() []string { return p }

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Version: "1.2.3", BuildTime: "today"})
	rec := serve(h.HealthCheck, http.MethodGet, "/ops/health")

	require.Equal(t, http.StatusOK, rec.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	t.Run("pending views", func(t *testing.T) {
		h := handler.NewOpsHandler(handler.OpsConfig{Views: fakePending{"matched_stops", "vlille"}})
		rec := serve(h.ReadinessCheck, http.MethodGet, "/ops/ready")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var ready models.Readiness
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
		assert.Equal(t, models.HealthStatusFail, ready.Status)
		assert.Equal(t, []string{"matched_stops", "vlille"}, ready.Pending)
	})

	t.Run("all ready", func(t *testing.T) {
		h := handler.NewOpsHandler(handler.OpsConfig{Views: fakePending{}})
		rec := serve(h.ReadinessCheck, http.MethodGet, "/ops/ready")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pending")
	})
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Second

	store := snapshot.NewStore("fresh", "old", "failing", "empty")
	require.NoError(t, store.Set("fresh", json.RawMessage(`1`), now.Add(-10*time.Second)))
	require.NoError(t, store.Set("old", json.RawMessage(`1`), now.Add(-2*time.Minute)))
	require.NoError(t, store.Set("failing", json.RawMessage(`1`), now.Add(-5*time.Second)))
	require.NoError(t, store.SetError("failing", errors.New("exit status 1"), now))

	monitor := &fakeMonitor{
		sources: []source.Source{
			{Name: "fresh", Kind: source.KindFile, Interval: interval},
			{Name: "old", Kind: source.KindFile, Interval: interval},
			{Name: "failing", Kind: source.KindProcess, Interval: interval},
			{Name: "empty", Kind: source.KindFile, Interval: interval},
		},
		metrics: map[string]worker.SourceMetrics{
			"fresh": {Refreshes: 4, LastAttemptAt: now.Add(-10 * time.Second), LastRefreshDuration: 250 * time.Millisecond},
			"failing": {Refreshes: 3, Failures: 1, LastAttemptAt: now},
		},
	}

	h := handler.NewOpsHandler(handler.OpsConfig{
		Store:   store,
		Refresh: monitor,
		Now:     func() time.Time { return now },
	})
	rec := serve(h.SystemStatus, http.MethodGet, "/ops/status")

	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Sources, 4)

	byName := make(map[string]models.SourceStatus, len(status.Sources))
	for _, s := range status.Sources {
		byName[s.Source] = s
	}

	fresh := byName["fresh"]
	assert.Equal(t, models.HealthStatusOK, fresh.Status)
	assert.False(t, fresh.Stale)
	assert.Equal(t, "file", fresh.Kind)
	assert.InDelta(t, 10.0, fresh.AgeSeconds, 0.001)
	assert.InDelta(t, 30.0, fresh.IntervalSeconds, 0.001)
	assert.InDelta(t, 0.25, fresh.LastDurationSeconds, 0.001)
	assert.Equal(t, int64(4), fresh.Refreshes)
	assert.Nil(t, fresh.LastError)
	require.NotNil(t, fresh.LastUpdated)

	old := byName["old"]
	assert.Equal(t, models.HealthStatusDegraded, old.Status)
	assert.True(t, old.Stale)
	assert.Nil(t, old.LastAttemptAt)

	failing := byName["failing"]
	assert.Equal(t, models.HealthStatusDegraded, failing.Status)
	assert.True(t, failing.Stale)
	assert.True(t, failing.Ready)
	require.NotNil(t, failing.LastError)
	assert.Equal(t, "exit status 1", *failing.LastError)
	assert.Equal(t, int64(1), failing.Failures)

	empty := byName["empty"]
	assert.Equal(t, models.HealthStatusFail, empty.Status)
	assert.False(t, empty.Ready)
	assert.Nil(t, empty.LastUpdated)
	assert.Zero(t, empty.AgeSeconds)
}

func TestOpsHandler_SystemStatusWithoutSources(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{})
	rec := serve(h.SystemStatus, http.MethodGet, "/ops/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sources":[]`)
}
