// Package views exposes read-only views over the snapshot store: raw
// passthrough views of one source and the joined matched-stops view.
//
// Reads never wait for a refresh. A view whose required sources have not
// produced a payload yet returns ErrNotReady.
package views

import (
	"errors"
	"fmt"
	"time"

	"github.com/mobilille/mobilille/internal/matching"
	"github.com/mobilille/mobilille/internal/mobility"
	"github.com/mobilille/mobilille/internal/snapshot"
)

// ErrNotReady is returned when a required snapshot has no payload yet.
var ErrNotReady = errors.New("data is being retrieved")

// ErrUnexpectedPayload is returned when a snapshot holds a payload of the
// wrong type for the view.
var ErrUnexpectedPayload = errors.New("unexpected payload type")

// ErrUnknownView is returned when reading a view that was never registered.
var ErrUnknownView = errors.New("unknown view")

// Result is the payload served by a view.
type Result struct {
	// Payload is the served value.
	Payload any

	// LastUpdated is when the payload's primary source was last refreshed.
	LastUpdated time.Time
}

// View is a named read-only view.
type View interface {
	Name() string
	Ready() bool
	Read() (Result, error)
}

// Passthrough serves the payload of a single source as-is.
type Passthrough struct {
	name   string
	source string
	store  *snapshot.Store
}

// NewPassthrough creates a view named name over the source's snapshot.
func NewPassthrough(name, source string, store *snapshot.Store) *Passthrough {
	return &Passthrough{name: name, source: source, store: store}
}

// Name returns the view name.
func (v *Passthrough) Name() string { return v.name }

// Source returns the name of the served source.
func (v *Passthrough) Source() string { return v.source }

// Ready reports whether the source has a payload.
func (v *Passthrough) Ready() bool {
	snap, ok := v.store.Get(v.source)
	return ok && snap.Ready()
}

// Read returns the source's last good payload.
func (v *Passthrough) Read() (Result, error) {
	snap, ok := v.store.Get(v.source)
	if !ok || !snap.Ready() {
		return Result{}, ErrNotReady
	}
	return Result{Payload: snap.Payload, LastUpdated: snap.LastUpdated}, nil
}

// JoinedSources names the sources of the matched-stops view.
type JoinedSources struct {
	Schedule      string
	PhysicalStops string
	Realtime      string
}

// Joined serves the matched-stops join of three sources.
type Joined struct {
	name    string
	sources JoinedSources
	store   *snapshot.Store
}

// NewJoined creates the matched-stops view.
func NewJoined(name string, sources JoinedSources, store *snapshot.Store) *Joined {
	return &Joined{name: name, sources: sources, store: store}
}

// Name returns the view name.
func (v *Joined) Name() string { return v.name }

// Ready reports whether all three sources have a payload.
func (v *Joined) Ready() bool {
	for _, name := range []string{v.sources.Schedule, v.sources.PhysicalStops, v.sources.Realtime} {
		snap, ok := v.store.Get(name)
		if !ok || !snap.Ready() {
			return false
		}
	}
	return true
}

// Read joins the current snapshots. The payload is a []matching.MatchedStop
// and LastUpdated is the schedule's.
func (v *Joined) Read() (Result, error) {
	sched, ok := v.store.Get(v.sources.Schedule)
	if !ok || !sched.Ready() {
		return Result{}, ErrNotReady
	}
	stops, ok := v.store.Get(v.sources.PhysicalStops)
	if !ok || !stops.Ready() {
		return Result{}, ErrNotReady
	}
	rt, ok := v.store.Get(v.sources.Realtime)
	if !ok || !rt.Ready() {
		return Result{}, ErrNotReady
	}

	schedule, ok := sched.Payload.(*mobility.ScheduleFeed)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w: %T", v.sources.Schedule, ErrUnexpectedPayload, sched.Payload)
	}
	registry, ok := stops.Payload.(*mobility.PhysicalStopRegistry)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w: %T", v.sources.PhysicalStops, ErrUnexpectedPayload, stops.Payload)
	}
	realtime, ok := rt.Payload.(*mobility.RealTimeFeed)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w: %T", v.sources.Realtime, ErrUnexpectedPayload, rt.Payload)
	}

	return Result{
		Payload:     matching.Join(schedule, registry, realtime),
		LastUpdated: sched.LastUpdated,
	}, nil
}

// Facade is the set of views served by the application.
type Facade struct {
	views map[string]View
	names []string
}

// NewFacade registers views by name. Later views with a duplicate name are
// ignored.
func NewFacade(views ...View) *Facade {
	f := &Facade{views: make(map[string]View, len(views))}
	for _, v := range views {
		if _, ok := f.views[v.Name()]; ok {
			continue
		}
		f.views[v.Name()] = v
		f.names = append(f.names, v.Name())
	}
	return f
}

// Get returns a view by name.
func (f *Facade) Get(name string) (View, bool) {
	v, ok := f.views[name]
	return v, ok
}

// Read reads a view by name.
func (f *Facade) Read(name string) (Result, error) {
	v, ok := f.views[name]
	if !ok {
		return Result{}, fmt.Errorf("view %q: %w", name, ErrUnknownView)
	}
	return v.Read()
}

// Ready reports whether every view is ready.
func (f *Facade) Ready() bool {
	for _, v := range f.views {
		if !v.Ready() {
			return false
		}
	}
	return true
}

// Pending returns the names of views that are not ready, in registration order.
func (f *Facade) Pending() []string {
	var out []string
	for _, name := range f.names {
		if !f.views[name].Ready() {
			out = append(out, name)
		}
	}
	return out
}

// Names returns view names in registration order.
func (f *Facade) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}
