package models

import (
	"github.com/mobilille/mobilille/internal/matching"
)

// MatchedStopsResponse is served by GET /api/matched_stops.
type MatchedStopsResponse struct {
	LastUpdated  Timestamp              `json:"lastUpdated"`
	MatchedStops []matching.MatchedStop `json:"matchedStops"`
}

// ScheduleResponse is served by GET /api/gtfs. Data is the schedule
// document as produced.
type ScheduleResponse struct {
	LastUpdated Timestamp `json:"lastUpdated"`
	Data        any       `json:"data"`
}
