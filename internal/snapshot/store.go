// Package snapshot holds the most recent fetch result of every data source.
//
// Each source owns exactly one slot. The source's refresh loop is the only
// writer of its slot; any number of readers may call Get concurrently. Slots
// hold immutable Snapshot values swapped atomically, so a reader never sees
// a half-written payload and never takes a lock.
package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// ErrUnknownSource is returned when writing to a slot that was never registered.
var ErrUnknownSource = errors.New("unknown source")

// Snapshot is the committed state of one source.
type Snapshot struct {
	// Payload is the last successfully parsed payload, nil until the first success.
	Payload any

	// LastUpdated is when Payload was committed. Zero until the first success.
	LastUpdated time.Time

	// LastError is the error of the most recent attempt, nil after a success.
	LastError error

	// LastErrorAt is when LastError was recorded.
	LastErrorAt time.Time
}

// Ready reports whether the snapshot holds a payload.
func (s Snapshot) Ready() bool {
	return s.Payload != nil
}

// Age returns how long ago the payload was committed. It is zero when the
// snapshot has no payload.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.LastUpdated.IsZero() {
		return 0
	}
	return now.Sub(s.LastUpdated)
}

// Stale reports whether the payload is older than maxAge or the most recent
// attempt failed. A snapshot without payload is always stale.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if !s.Ready() || s.LastError != nil {
		return true
	}
	return maxAge > 0 && s.Age(now) > maxAge
}

// Store keeps one snapshot slot per registered source.
type Store struct {
	slots map[string]*atomic.Pointer[Snapshot]
	names []string
}

// NewStore creates a store with one empty slot per source name.
// The set of slots is fixed for the lifetime of the store.
func NewStore(names ...string) *Store {
	s := &Store{
		slots: make(map[string]*atomic.Pointer[Snapshot], len(names)),
	}
	for _, name := range names {
		if _, ok := s.slots[name]; ok {
			continue
		}
		slot := &atomic.Pointer[Snapshot]{}
		slot.Store(&Snapshot{})
		s.slots[name] = slot
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Get returns the last committed snapshot for a source.
// The boolean is false when the source is not registered.
func (s *Store) Get(name string) (Snapshot, bool) {
	slot, ok := s.slots[name]
	if !ok {
		return Snapshot{}, false
	}
	return *slot.Load(), true
}

// Set commits a successful payload. It clears any previous error.
func (s *Store) Set(name string, payload any, updatedAt time.Time) error {
	if payload == nil {
		return fmt.Errorf("set %s: nil payload", name)
	}
	slot, ok := s.slots[name]
	if !ok {
		return fmt.Errorf("set %s: %w", name, ErrUnknownSource)
	}
	slot.Store(&Snapshot{
		Payload:     payload,
		LastUpdated: updatedAt,
	})
	return nil
}

// SetError records a failed attempt. The previous payload and its
// LastUpdated are kept so readers keep serving the last good data.
func (s *Store) SetError(name string, err error, at time.Time) error {
	slot, ok := s.slots[name]
	if !ok {
		return fmt.Errorf("set error %s: %w", name, ErrUnknownSource)
	}
	prev := slot.Load()
	next := *prev
	next.LastError = err
	next.LastErrorAt = at
	slot.Store(&next)
	return nil
}

// Names returns the registered source names in sorted order.
func (s *Store) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// All returns a copy of every slot keyed by source name.
func (s *Store) All() map[string]Snapshot {
	out := make(map[string]Snapshot, len(s.slots))
	for name, slot := range s.slots {
		out[name] = *slot.Load()
	}
	return out
}
