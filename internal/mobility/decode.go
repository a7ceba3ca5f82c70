package mobility

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mobilille/mobilille/internal/source"
)

// Payload formats understood by DecoderFor.
const (
	FormatSchedule      = "schedule"
	FormatPhysicalStops = "physical_stops"
	FormatRealtime      = "realtime"
	FormatMetroStations = "metro_stations"
	FormatJSON          = "json"
)

// ErrUpstreamError is returned when the schedule producer reported an error
// document instead of trips.
var ErrUpstreamError = errors.New("upstream reported an error")

// DecoderFor returns the decoder for a payload format.
func DecoderFor(format string) (source.Decoder, error) {
	switch format {
	case FormatSchedule:
		return DecodeSchedule, nil
	case FormatPhysicalStops:
		return DecodePhysicalStops, nil
	case FormatRealtime:
		return DecodeRealtime, nil
	case FormatMetroStations:
		return DecodeMetroStations, nil
	case FormatJSON, "":
		return source.RawJSON, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// DecodeSchedule decodes the schedule producer output into a *ScheduleFeed.
func DecodeSchedule(data []byte) (any, error) {
	var doc struct {
		Trips *[]Trip         `json:"trips"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if Present(doc.Error) {
		return nil, fmt.Errorf("decode schedule: %w: %s", ErrUpstreamError, Text(doc.Error))
	}
	if doc.Trips == nil {
		return nil, errors.New("decode schedule: missing trips")
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return &ScheduleFeed{Trips: *doc.Trips, Raw: raw}, nil
}

// PhysicalStopRegistry is the decoded physical stop collection.
type PhysicalStopRegistry struct {
	Stops []PhysicalStop

	byCode map[string]int
}

// Lookup returns the first stop whose code_arret_physique equals stopID.
func (r *PhysicalStopRegistry) Lookup(stopID string) (*PhysicalStop, bool) {
	i, ok := r.byCode[stopID]
	if !ok {
		return nil, false
	}
	return &r.Stops[i], true
}

type feature struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   *struct {
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

func (f feature) coordinates() json.RawMessage {
	if f.Geometry == nil {
		return nil
	}
	return f.Geometry.Coordinates
}

func decodeFeatures(data []byte) ([]feature, error) {
	var doc struct {
		Features *[]feature `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Features == nil {
		return nil, errors.New("missing features")
	}
	return *doc.Features, nil
}

// NewPhysicalStopRegistry indexes stops by code_arret_physique. Only string
// codes are indexed, and the first occurrence of a code wins.
func NewPhysicalStopRegistry(stops []PhysicalStop) *PhysicalStopRegistry {
	r := &PhysicalStopRegistry{
		Stops:  stops,
		byCode: make(map[string]int, len(stops)),
	}
	for i, stop := range stops {
		code, ok := stringValue(stop.CodeArretPhysique)
		if !ok {
			continue
		}
		if _, seen := r.byCode[code]; !seen {
			r.byCode[code] = i
		}
	}
	return r
}

// DecodePhysicalStops decodes a GeoJSON feature collection into a
// *PhysicalStopRegistry.
func DecodePhysicalStops(data []byte) (any, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, fmt.Errorf("decode physical stops: %w", err)
	}

	stops := make([]PhysicalStop, 0, len(features))
	for _, f := range features {
		p := f.Properties
		stops = append(stops, PhysicalStop{
			CodeArretPhysique:  p["code_arret_physique"],
			NomCommercialArret: p["nom_commercial_arret"],
			Rue:                p["rue"],
			Commune:            p["commune"],
			TypeVoirie:         p["type_voirie"],
			CodePostal:         p["code_postal"],
			CodeInsee:          p["code_insee"],
			CodeLigne:          p["code_ligne"],
			Coordinates:        f.coordinates(),
		})
	}

	return NewPhysicalStopRegistry(stops), nil
}

// RealTimeFeed is the decoded next-passages feed.
type RealTimeFeed struct {
	Records []Passage

	// byElement maps each string element of an array identifier to the
	// first record holding it.
	byElement map[string]int

	// textual lists, in feed order, the records whose identifier is a string.
	textual []textualID
}

type textualID struct {
	index int
	id    string
}

// NewRealTimeFeed builds the containment indexes for records.
func NewRealTimeFeed(records []Passage) *RealTimeFeed {
	f := &RealTimeFeed{
		Records:   records,
		byElement: make(map[string]int),
	}
	for i, rec := range records {
		raw := bytes.TrimSpace(rec.IdentifiantStation)
		if len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '"':
			if id, ok := stringValue(raw); ok {
				f.textual = append(f.textual, textualID{index: i, id: id})
			}
		case '[':
			var elems []json.RawMessage
			if err := json.Unmarshal(raw, &elems); err != nil {
				continue
			}
			for _, e := range elems {
				id, ok := stringValue(e)
				if !ok {
					continue
				}
				if _, seen := f.byElement[id]; !seen {
					f.byElement[id] = i
				}
			}
		}
	}
	return f
}

// Lookup returns the first record whose identifiant_station contains stopID:
// as a substring when the identifier is a string, as an element when it is
// an array.
func (f *RealTimeFeed) Lookup(stopID string) (*Passage, bool) {
	best := -1
	if i, ok := f.byElement[stopID]; ok {
		best = i
	}
	return f.scan(stopID, best)
}

// LookupSubstring returns the first record whose string identifier contains
// text. Array identifiers are skipped.
func (f *RealTimeFeed) LookupSubstring(text string) (*Passage, bool) {
	return f.scan(text, -1)
}

// scan looks for a string identifier containing text ahead of best.
func (f *RealTimeFeed) scan(text string, best int) (*Passage, bool) {
	for _, t := range f.textual {
		if best >= 0 && t.index > best {
			break
		}
		if strings.Contains(t.id, text) {
			best = t.index
			break
		}
	}
	if best < 0 {
		return nil, false
	}
	return &f.Records[best], true
}

// DecodeRealtime decodes the next-passages document into a *RealTimeFeed.
func DecodeRealtime(data []byte) (any, error) {
	var doc struct {
		Records *[]Passage `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode realtime: %w", err)
	}
	if doc.Records == nil {
		return nil, errors.New("decode realtime: missing records")
	}
	return NewRealTimeFeed(*doc.Records), nil
}

// DecodeMetroStations projects the metro station feature collection into
// a []MetroStation.
func DecodeMetroStations(data []byte) (any, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, fmt.Errorf("decode metro stations: %w", err)
	}

	stations := make([]MetroStation, 0, len(features))
	for _, f := range features {
		stations = append(stations, MetroStation{
			NomStatio:   f.Properties["nom_statio"],
			Commune:     f.Properties["commune"],
			Ligne:       f.Properties["ligne"],
			Coordinates: f.coordinates(),
		})
	}
	return stations, nil
}
