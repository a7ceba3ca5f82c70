package tripfeed

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jamespfennell/gtfs"
)

// StopInfo is the static metadata of a stop.
type StopInfo struct {
	Name string
	Desc string
	Geom string
}

// StopDirectory maps stop IDs to static metadata.
type StopDirectory map[string]StopInfo

// LoadStopsFile reads stop metadata from a static GTFS zip.
func LoadStopsFile(path string) (StopDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading static GTFS: %w", err)
	}
	return LoadStops(b)
}

// LoadStops parses stop metadata from static GTFS zip contents.
func LoadStops(b []byte) (StopDirectory, error) {
	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing static GTFS: %w", err)
	}

	dir := make(StopDirectory, len(static.Stops))
	for i := range static.Stops {
		stop := &static.Stops[i]
		dir[stop.Id] = StopInfo{
			Name: stop.Name,
			Desc: stop.Description,
			Geom: pointWKT(stop.Longitude, stop.Latitude),
		}
	}
	return dir, nil
}

// Lookup returns the metadata of a stop, with placeholders for unknown
// stops and empty fields.
func (d StopDirectory) Lookup(stopID string) StopInfo {
	info, ok := d[stopID]
	if !ok {
		return StopInfo{Name: unknown, Desc: notAvailable, Geom: notAvailable}
	}
	if info.Desc == "" {
		info.Desc = notAvailable
	}
	if info.Geom == "" {
		info.Geom = notAvailable
	}
	return info
}

func pointWKT(lon, lat *float64) string {
	if lon == nil || lat == nil {
		return ""
	}
	return "POINT (" + strconv.FormatFloat(*lon, 'f', -1, 64) + " " + strconv.FormatFloat(*lat, 'f', -1, 64) + ")"
}
