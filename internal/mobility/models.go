// Package mobility defines the upstream documents served by the cache and
// decodes them into payloads with prebuilt lookup indexes.
//
// Field values are kept as raw JSON so they are served exactly as the
// upstream provider wrote them.
package mobility

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Placeholder values used when a correlated record or field is missing.
const (
	NotFound     = "Non trouvé"
	NotAvailable = "Non disponible"
	Unknown      = "Inconnu"
)

// ScheduleFeed is the document produced by the schedule process.
type ScheduleFeed struct {
	// Trips in feed order.
	Trips []Trip

	// Raw is the full document as received.
	Raw json.RawMessage
}

// StopCount returns the number of trip stops across all trips.
func (f *ScheduleFeed) StopCount() int {
	n := 0
	for _, trip := range f.Trips {
		n += len(trip.Stops)
	}
	return n
}

// Trip is one trip update with its ordered stops.
type Trip struct {
	TripID json.RawMessage `json:"trip_id,omitempty"`
	Stops  []TripStop      `json:"stops"`
}

// TripStop is one stop time of a trip.
type TripStop struct {
	// StopID is the textual stop identifier used for matching.
	StopID string `json:"-"`

	// HasStopID is set when stop_id is a string, number or boolean. A stop
	// without one matches nothing.
	HasStopID bool `json:"-"`

	// StringStopID is set when stop_id is a JSON string. Only string ids
	// match registry keys and array identifiers exactly.
	StringStopID bool `json:"-"`

	StopIDRaw     json.RawMessage `json:"stop_id"`
	StopName      json.RawMessage `json:"stop_name"`
	StopDesc      json.RawMessage `json:"stop_desc"`
	Geom          json.RawMessage `json:"geom"`
	ArrivalTime   json.RawMessage `json:"arrival_time"`
	DepartureTime json.RawMessage `json:"departure_time"`
}

// UnmarshalJSON decodes the raw fields and derives StopID.
func (s *TripStop) UnmarshalJSON(data []byte) error {
	type plain TripStop
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = TripStop(p)
	s.StopID = textOf(s.StopIDRaw)
	_, s.StringStopID = stringValue(s.StopIDRaw)
	s.HasStopID = s.StringStopID || s.StopID != ""
	return nil
}

// PhysicalStop is one feature of the physical stop registry.
type PhysicalStop struct {
	CodeArretPhysique  json.RawMessage
	NomCommercialArret json.RawMessage
	Rue                json.RawMessage
	Commune            json.RawMessage
	TypeVoirie         json.RawMessage
	CodePostal         json.RawMessage
	CodeInsee          json.RawMessage
	CodeLigne          json.RawMessage
	Coordinates        json.RawMessage
}

// Passage is one record of the real-time next-passages feed.
type Passage struct {
	IdentifiantStation json.RawMessage `json:"identifiant_station"`
	NomStation         json.RawMessage `json:"nom_station"`
	CodeLigne          json.RawMessage `json:"code_ligne"`
	SensLigne          json.RawMessage `json:"sens_ligne"`
	HeureEstimeeDepart json.RawMessage `json:"heure_estimee_depart"`
	DateModification   json.RawMessage `json:"date_modification"`
}

// MetroStation is the projection of a metro station feature.
type MetroStation struct {
	NomStatio   json.RawMessage `json:"nom_statio,omitempty"`
	Commune     json.RawMessage `json:"commune,omitempty"`
	Ligne       json.RawMessage `json:"ligne,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// Present reports whether a raw value exists and is not JSON null.
func Present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Truthy reports whether a raw value is present and not an empty string,
// zero, or false.
func Truthy(raw json.RawMessage) bool {
	if !Present(raw) {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}

// String returns s encoded as a JSON string value.
func String(s string) json.RawMessage {
	b, _ := json.Marshal(s) //nolint:errcheck // strings always marshal
	return b
}

// Text returns the textual form of a raw value: the content of a string,
// the literal of a number or boolean, and "" for anything else.
func Text(raw json.RawMessage) string {
	return textOf(raw)
}

func textOf(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		if _, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
			return string(trimmed)
		}
		if string(trimmed) == "true" || string(trimmed) == "false" {
			return string(trimmed)
		}
		return ""
	}
}

func stringValue(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}
