// Package storage holds the latest arrival payload for every (direction, line)
// pair and hands out immutable snapshots of the whole set.
package storage

import (
	"encoding/json"
	"time"

	"github.com/HatiCode/trainboard/pkg/lines"
)

// LineArrivals is one line's cached payload within a snapshot.
type LineArrivals struct {
	Name      string          `json:"name"`
	Trains    json.RawMessage `json:"trains"`
	UpdatedAt time.Time       `json:"-"`
}

// Snapshot is a point-in-time view of every cached payload. Lines are sorted
// by name within each direction. A Snapshot is never modified after it has
// been returned by a Store; callers must not modify it either.
type Snapshot struct {
	Inbound  []LineArrivals `json:"inbound"`
	Outbound []LineArrivals `json:"outbound"`
}

// Store is a concurrency-safe latest-value cache.
type Store interface {
	// Upsert replaces the payload for (direction, name).
	Upsert(direction lines.Direction, name string, payload json.RawMessage)
	// Snapshot returns the current view of all entries.
	Snapshot() Snapshot
}

// Direction returns the entries cached for d.
func (s Snapshot) Direction(d lines.Direction) []LineArrivals {
	if d == lines.Outbound {
		return s.Outbound
	}
	return s.Inbound
}

// Lookup returns the payload cached for (direction, name). A key that was
// never written is reported as absent, not as an error.
func (s Snapshot) Lookup(d lines.Direction, name string) (json.RawMessage, bool) {
	for _, la := range s.Direction(d) {
		if la.Name == name {
			return la.Trains, true
		}
	}
	return nil, false
}

// Len is the number of cached entries across both directions.
func (s Snapshot) Len() int {
	return len(s.Inbound) + len(s.Outbound)
}

// Oldest returns the write time of the least recently refreshed entry, or
// the zero time for an empty snapshot.
func (s Snapshot) Oldest() time.Time {
	var oldest time.Time
	for _, d := range lines.Directions {
		for _, la := range s.Direction(d) {
			if oldest.IsZero() || la.UpdatedAt.Before(oldest) {
				oldest = la.UpdatedAt
			}
		}
	}
	return oldest
}

// Payloads returns only the payloads per direction, without line names.
func (s Snapshot) Payloads() map[lines.Direction][]json.RawMessage {
	out := make(map[lines.Direction][]json.RawMessage, len(lines.Directions))
	for _, d := range lines.Directions {
		entries := s.Direction(d)
		payloads := make([]json.RawMessage, 0, len(entries))
		for _, la := range entries {
			payloads = append(payloads, la.Trains)
		}
		out[d] = payloads
	}
	return out
}
