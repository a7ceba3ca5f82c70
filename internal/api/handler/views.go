// Package handler provides HTTP handlers for the Mobilille API.
package handler

import (
	"net/http"
	"time"

	"github.com/mobilille/mobilille/internal/api/models"
	"github.com/mobilille/mobilille/internal/api/response"
	"github.com/mobilille/mobilille/internal/matching"
	"github.com/mobilille/mobilille/internal/mobility"
	"github.com/mobilille/mobilille/internal/views"
)

// View names served by the data endpoints.
const (
	ViewMatchedStops  = "matched_stops"
	ViewSchedule      = "gtfs"
	ViewMetroStations = "stations_metro"
	ViewVLille        = "vlille"
	ViewParking       = "parking"
	ViewSocial        = "reseaux_sociaux"
)

// ViewReader reads named views.
type ViewReader interface {
	Read(name string) (views.Result, error)
}

// DataHandler serves the read-only data endpoints.
type DataHandler struct {
	views ViewReader
}

// NewDataHandler creates a new DataHandler.
func NewDataHandler(reader ViewReader) *DataHandler {
	return &DataHandler{views: reader}
}

// MatchedStops handles GET /api/matched_stops.
func (h *DataHandler) MatchedStops(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Read(ViewMatchedStops)
	if err != nil {
		response.ViewError(w, r, ViewMatchedStops, err)
		return
	}

	stops, ok := res.Payload.([]matching.MatchedStop)
	if !ok {
		response.InternalError(w, r, "view "+ViewMatchedStops+" has an unexpected payload")
		return
	}
	if stops == nil {
		stops = []matching.MatchedStop{}
	}

	setLastModified(w, res.LastUpdated)
	response.JSON(w, r, http.StatusOK, models.MatchedStopsResponse{
		LastUpdated:  models.Timestamp(res.LastUpdated),
		MatchedStops: stops,
	})
}

// Schedule handles GET /api/gtfs. The schedule document is served as
// produced.
func (h *DataHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Read(ViewSchedule)
	if err != nil {
		response.ViewError(w, r, ViewSchedule, err)
		return
	}

	feed, ok := res.Payload.(*mobility.ScheduleFeed)
	if !ok || feed == nil {
		response.InternalError(w, r, "view "+ViewSchedule+" has an unexpected payload")
		return
	}

	setLastModified(w, res.LastUpdated)
	response.JSON(w, r, http.StatusOK, models.ScheduleResponse{
		LastUpdated: models.Timestamp(res.LastUpdated),
		Data:        feed.Raw,
	})
}

// Passthrough returns a handler serving the payload of a view unchanged.
// Its lastUpdated travels in the Last-Modified header.
func (h *DataHandler) Passthrough(view string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.views.Read(view)
		if err != nil {
			response.ViewError(w, r, view, err)
			return
		}
		setLastModified(w, res.LastUpdated)
		response.JSON(w, r, http.StatusOK, res.Payload)
	}
}

func setLastModified(w http.ResponseWriter, at time.Time) {
	if at.IsZero() {
		return
	}
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
}
