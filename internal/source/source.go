// Package source provides adapters that acquire the raw payload of one named
// data source, either by running an external program or by reading a file.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies how a source is fetched.
type Kind string

const (
	KindProcess Kind = "process"
	KindFile    Kind = "file"
)

// DefaultInterval is the refresh interval used when a source does not set one.
const DefaultInterval = 30 * time.Second

// Decoder turns one well-formed JSON document into a source payload.
// Returned payloads are treated as immutable once handed to the store.
type Decoder func(data []byte) (any, error)

// Adapter fetches and parses the current payload of a source.
type Adapter interface {
	// Fetch performs one acquisition. It returns a *FetchError on failure.
	Fetch(ctx context.Context) (any, error)
}

// Source is the immutable identity of a data source.
type Source struct {
	// Name is the unique source name used as the snapshot key.
	Name string

	// Kind is how the source is fetched.
	Kind Kind

	// Interval is the fixed refresh interval.
	Interval time.Duration

	// Timeout bounds a single fetch. Zero means the interval.
	Timeout time.Duration

	// Adapter performs the fetch.
	Adapter Adapter
}

// FetchTimeout returns the effective per-fetch timeout.
func (s Source) FetchTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultInterval
}

// RefreshInterval returns the effective refresh interval.
func (s Source) RefreshInterval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultInterval
}

var errNotSingleDocument = errors.New("payload is not a single well-formed JSON document")

// decode validates that data is exactly one JSON document and runs the decoder.
func decode(name string, data []byte, dec Decoder) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, parseFailed(name, errNotSingleDocument)
	}
	if dec == nil {
		dec = RawJSON
	}
	payload, err := dec(trimmed)
	if err != nil {
		return nil, parseFailed(name, err)
	}
	if payload == nil {
		return nil, parseFailed(name, errors.New("decoder returned no payload"))
	}
	return payload, nil
}

// RawJSON keeps the document as-is. It is the decoder for passthrough sources.
func RawJSON(data []byte) (any, error) {
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return raw, nil
}
