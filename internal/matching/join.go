// Package matching correlates scheduled trip stops with the physical stop
// registry and the real-time passages feed.
package matching

import (
	"encoding/json"

	"github.com/mobilille/mobilille/internal/mobility"
)

// MatchedStop is a trip stop enriched with its physical stop and next
// passage. Fields absent upstream are omitted, as upstream omitted them.
type MatchedStop struct {
	StopID        json.RawMessage `json:"stop_id,omitempty"`
	StopName      json.RawMessage `json:"stop_name,omitempty"`
	StopDesc      json.RawMessage `json:"stop_desc,omitempty"`
	Geom          json.RawMessage `json:"geom,omitempty"`
	ArrivalTime   json.RawMessage `json:"arrival_time,omitempty"`
	DepartureTime json.RawMessage `json:"departure_time,omitempty"`

	CodeArretPhysique  json.RawMessage `json:"code_arret_physique,omitempty"`
	NomCommercialArret json.RawMessage `json:"nom_commercial_arret,omitempty"`
	Adresse            json.RawMessage `json:"adresse,omitempty"`
	Coordonnees        json.RawMessage `json:"coordonnees,omitempty"`
	TypeVoirie         json.RawMessage `json:"type_voirie,omitempty"`
	CodePostal         json.RawMessage `json:"code_postal,omitempty"`
	CodeInsee          json.RawMessage `json:"code_insee,omitempty"`

	IdentifiantStation json.RawMessage `json:"identifiant_station,omitempty"`
	NomStation         json.RawMessage `json:"nom_station,omitempty"`
	CodeLigne          json.RawMessage `json:"code_ligne"`
	SensLigne          json.RawMessage `json:"sens_ligne,omitempty"`
	HeureEstimeeDepart json.RawMessage `json:"heure_estimee_depart,omitempty"`
	DateModification   json.RawMessage `json:"date_modification,omitempty"`
}

var (
	notFound     = mobility.String(mobility.NotFound)
	notAvailable = mobility.String(mobility.NotAvailable)
)

// Join correlates every trip stop of schedule, in trip then stop order.
// A stop with neither a physical stop nor a passage is dropped. The result
// is never nil.
func Join(schedule *mobility.ScheduleFeed, registry *mobility.PhysicalStopRegistry, realtime *mobility.RealTimeFeed) []MatchedStop {
	out := make([]MatchedStop, 0, schedule.StopCount())

	for _, trip := range schedule.Trips {
		for i := range trip.Stops {
			stop := &trip.Stops[i]

			physical, passage := lookup(stop, registry, realtime)
			if physical == nil && passage == nil {
				continue
			}

			m := MatchedStop{
				StopID:        stop.StopIDRaw,
				StopName:      stop.StopName,
				StopDesc:      stop.StopDesc,
				Geom:          stop.Geom,
				ArrivalTime:   stop.ArrivalTime,
				DepartureTime: stop.DepartureTime,
				CodeLigne:     lineCode(physical, passage),
			}
			m.withPhysical(physical)
			m.withPassage(passage)

			out = append(out, m)
		}
	}

	return out
}

// lookup finds the physical stop and passage of a trip stop. Registry keys
// and array identifiers compare as strings, so a numeric stop_id only
// matches as a substring of a string identifier. A stop without a stop_id
// matches nothing.
func lookup(stop *mobility.TripStop, registry *mobility.PhysicalStopRegistry, realtime *mobility.RealTimeFeed) (*mobility.PhysicalStop, *mobility.Passage) {
	if !stop.HasStopID {
		return nil, nil
	}
	if !stop.StringStopID {
		passage, _ := realtime.LookupSubstring(stop.StopID)
		return nil, passage
	}
	physical, _ := registry.Lookup(stop.StopID)
	passage, _ := realtime.Lookup(stop.StopID)
	return physical, passage
}

func (m *MatchedStop) withPhysical(p *mobility.PhysicalStop) {
	if p == nil {
		m.CodeArretPhysique = notFound
		m.NomCommercialArret = notFound
		m.Adresse = notAvailable
		m.Coordonnees = notAvailable
		m.TypeVoirie = notAvailable
		m.CodePostal = notAvailable
		m.CodeInsee = notAvailable
		return
	}
	m.CodeArretPhysique = p.CodeArretPhysique
	m.NomCommercialArret = p.NomCommercialArret
	m.Adresse = mobility.String(mobility.Text(p.Rue) + ", " + mobility.Text(p.Commune))
	m.Coordonnees = p.Coordinates
	m.TypeVoirie = p.TypeVoirie
	m.CodePostal = p.CodePostal
	m.CodeInsee = p.CodeInsee
}

func (m *MatchedStop) withPassage(p *mobility.Passage) {
	if p == nil {
		m.IdentifiantStation = notFound
		m.NomStation = notFound
		m.SensLigne = notAvailable
		m.HeureEstimeeDepart = notAvailable
		m.DateModification = notAvailable
		return
	}
	m.IdentifiantStation = p.IdentifiantStation
	m.NomStation = p.NomStation
	m.SensLigne = p.SensLigne
	m.HeureEstimeeDepart = p.HeureEstimeeDepart
	m.DateModification = p.DateModification
}

// lineCode takes the line code of the physical stop when one matched, and
// of the passage otherwise. An unusable code is "Non disponible"; a matched
// physical stop never borrows the passage's code.
func lineCode(physical *mobility.PhysicalStop, passage *mobility.Passage) json.RawMessage {
	var code json.RawMessage
	switch {
	case physical != nil:
		code = physical.CodeLigne
	case passage != nil:
		code = passage.CodeLigne
	}
	if !mobility.Truthy(code) {
		return notAvailable
	}
	return code
}
