// Package tripfeed produces the schedule document: the trip updates of a
// GTFS-Realtime feed enriched with static stop metadata.
package tripfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/mobilille/mobilille/internal/mobility"
	"github.com/mobilille/mobilille/internal/provider/resilience"
)

const (
	unknown      = mobility.Unknown
	notAvailable = mobility.NotAvailable

	// TimeLayout is the layout of arrival and departure times.
	TimeLayout = "2006-01-02 15:04:05"
)

// Document is the schedule document written to stdout.
type Document struct {
	Trips    []Trip            `json:"trips"`
	Vehicles []json.RawMessage `json:"vehicles"`
	Alerts   []json.RawMessage `json:"alerts"`
}

// Trip is one trip update.
type Trip struct {
	TripID string `json:"trip_id"`
	Stops  []Stop `json:"stops"`
}

// Stop is one stop time update with stop metadata.
type Stop struct {
	StopID        string `json:"stop_id"`
	StopName      string `json:"stop_name"`
	StopDesc      string `json:"stop_desc"`
	Geom          string `json:"geom"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
}

// DecodeFeed parses a GTFS-Realtime protobuf message.
func DecodeFeed(b []byte) (*gtfsrt.FeedMessage, error) {
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(b, feed); err != nil {
		return nil, fmt.Errorf("decoding GTFS-RT feed: %w", err)
	}
	return feed, nil
}

// Build converts every trip update entity of feed, in feed order.
func Build(feed *gtfsrt.FeedMessage, stops StopDirectory, loc *time.Location) Document {
	doc := Document{
		Trips:    []Trip{},
		Vehicles: []json.RawMessage{},
		Alerts:   []json.RawMessage{},
	}

	for _, entity := range feed.GetEntity() {
		update := entity.GetTripUpdate()
		if update == nil {
			continue
		}

		trip := Trip{
			TripID: update.GetTrip().GetTripId(),
			Stops:  make([]Stop, 0, len(update.GetStopTimeUpdate())),
		}
		for _, stu := range update.GetStopTimeUpdate() {
			info := stops.Lookup(stu.GetStopId())
			trip.Stops = append(trip.Stops, Stop{
				StopID:        stu.GetStopId(),
				StopName:      info.Name,
				StopDesc:      info.Desc,
				Geom:          info.Geom,
				ArrivalTime:   formatEventTime(stu.GetArrival(), loc),
				DepartureTime: formatEventTime(stu.GetDeparture(), loc),
			})
		}
		doc.Trips = append(doc.Trips, trip)
	}

	return doc
}

func formatEventTime(ev *gtfsrt.TripUpdate_StopTimeEvent, loc *time.Location) string {
	if ev.GetTime() == 0 {
		return notAvailable
	}
	return time.Unix(ev.GetTime(), 0).In(loc).Format(TimeLayout)
}

// Write encodes doc as a single JSON document.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// ProducerConfig holds configuration for a Producer.
type ProducerConfig struct {
	// FeedURL is downloaded when FeedFile is empty.
	FeedURL string

	// FeedFile is a local GTFS-RT file.
	FeedFile string

	// StaticGTFS is the static GTFS zip with stop metadata.
	StaticGTFS string

	// Location renders times. Default: UTC
	Location *time.Location

	// Client downloads FeedURL. If nil, uses a resilient client with defaults.
	Client *resilience.Client

	// Logger writes diagnostics. It must not write to stdout.
	Logger zerolog.Logger
}

// Producer builds the schedule document once per Run.
type Producer struct {
	cfg ProducerConfig
}

// NewProducer creates a producer.
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Client == nil && cfg.FeedURL != "" {
		cfg.Client = resilience.NewClient(resilience.DefaultClientConfig("gtfs-rt"))
	}
	return &Producer{cfg: cfg}
}

// Run fetches the feed, builds the document and writes it to w.
// Nothing is written to w when an error is returned.
func (p *Producer) Run(ctx context.Context, w io.Writer) error {
	raw, err := p.fetch(ctx)
	if err != nil {
		return err
	}

	feed, err := DecodeFeed(raw)
	if err != nil {
		return err
	}

	stops, err := LoadStopsFile(p.cfg.StaticGTFS)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		p.cfg.Logger.Warn().
			Str("path", p.cfg.StaticGTFS).
			Msg("static GTFS not found, stop metadata unavailable")
		stops = StopDirectory{}
	}

	doc := Build(feed, stops, p.cfg.Location)

	p.cfg.Logger.Debug().
		Int("entities", len(feed.GetEntity())).
		Int("trips", len(doc.Trips)).
		Msg("schedule document built")

	return Write(w, doc)
}

func (p *Producer) fetch(ctx context.Context) ([]byte, error) {
	if p.cfg.FeedFile != "" {
		b, err := os.ReadFile(p.cfg.FeedFile)
		if err != nil {
			return nil, fmt.Errorf("reading GTFS-RT file: %w", err)
		}
		return b, nil
	}
	if p.cfg.FeedURL == "" {
		return nil, errors.New("no GTFS-RT feed configured")
	}

	b, err := p.cfg.Client.Get(ctx, p.cfg.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("fetching GTFS-RT feed: %w", err)
	}
	return b, nil
}
