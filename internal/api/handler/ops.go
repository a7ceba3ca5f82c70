package handler

import (
	"net/http"
	"time"

	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/api/response"
	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/source"
	"github.com/mobilille/mobilille/internal/worker"
)

// PendingLister reports the views that cannot be served yet.
type PendingLister interface {
	Pending() []string
}

// SnapshotReader reads committed source snapshots.
type SnapshotReader interface {
	Get(name string) (snapshot.Snapshot, bool)
}

// RefreshMonitor exposes the scheduled sources and their refresh statistics.
type RefreshMonitor interface {
	Sources() []source.Source
	GetMetrics(name string) (worker.SourceMetrics, bool)
	StaleAfter(src source.Source) time.Duration
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Views     PendingLister
	Store     SnapshotReader
	Refresh   RefreshMonitor

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	views     PendingLister
	store     SnapshotReader
	refresh   RefreshMonitor
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		views:     cfg.Views,
		store:     cfg.Store,
		refresh:   cfg.Refresh,
		now:       now,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready. It fails until every view has the
// data it needs.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	var pending []string
	if h.views != nil {
		pending = h.views.Pending()
	}

	if len(pending) > 0 {
		w.Header().Set("Retry-After", "5")
		response.JSON(w, r, http.StatusServiceUnavailable, models.Readiness{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.now()),
			Pending: pending,
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /ops/status - refresh status of every source.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status := models.SystemStatus{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(now),
		Sources: []models.SourceStatus{},
	}

	if h.refresh != nil && h.store != nil {
		for _, src := range h.refresh.Sources() {
			s := h.sourceStatus(src, now)
			status.Sources = append(status.Sources, s)
			status.Status = worst(status.Status, s.Status)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) sourceStatus(src source.Source, now time.Time) models.SourceStatus {
	snap, _ := h.store.Get(src.Name)
	stale := snap.Stale(now, h.refresh.StaleAfter(src))

	s := models.SourceStatus{
		Source:          src.Name,
		Kind:            string(src.Kind),
		Ready:           snap.Ready(),
		Stale:           stale,
		IntervalSeconds: src.RefreshInterval().Seconds(),
		AgeSeconds:      snap.Age(now).Seconds(),
		LastUpdated:     models.TimestampPtr(snap.LastUpdated),
		LastErrorAt:     models.TimestampPtr(snap.LastErrorAt),
	}
	if snap.LastError != nil {
		msg := snap.LastError.Error()
		s.LastError = &msg
	}

	if m, ok := h.refresh.GetMetrics(src.Name); ok {
		s.Refreshes = m.Refreshes
		s.Failures = m.Failures
		s.LastAttemptAt = models.TimestampPtr(m.LastAttemptAt)
		s.LastDurationSeconds = m.LastRefreshDuration.Seconds()
	}

	switch {
	case !s.Ready:
		s.Status = models.HealthStatusFail
	case stale:
		s.Status = models.HealthStatusDegraded
	default:
		s.Status = models.HealthStatusOK
	}
	return s
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := func(s models.HealthStatus) int {
		switch s {
		case models.HealthStatusFail:
			return 2
		case models.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
