package storage

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HatiCode/trainboard/pkg/lines"
)

type key struct {
	direction lines.Direction
	name      string
}

type entry struct {
	payload   json.RawMessage
	updatedAt time.Time
}

// MemoryStore is an in-memory Store. Writers serialize on a mutex and publish
// a freshly built Snapshot through an atomic pointer; readers only load that
// pointer and never wait on a writer.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[key]entry
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewMemoryStore returns an empty store whose snapshot has empty, non-nil
// direction lists.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[key]entry),
		now:     time.Now,
	}
	s.current.Store(&Snapshot{
		Inbound:  []LineArrivals{},
		Outbound: []LineArrivals{},
	})
	return s
}

// Upsert implements Store. The payload is copied, so the caller may reuse
// its buffer.
func (s *MemoryStore) Upsert(direction lines.Direction, name string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key{direction: direction, name: name}] = entry{
		payload:   bytes.Clone(payload),
		updatedAt: s.now(),
	}
	s.current.Store(s.build())
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot() Snapshot {
	return *s.current.Load()
}

// build derives a new Snapshot from entries. Caller holds mu.
func (s *MemoryStore) build() *Snapshot {
	snap := &Snapshot{
		Inbound:  []LineArrivals{},
		Outbound: []LineArrivals{},
	}
	for k, e := range s.entries {
		la := LineArrivals{Name: k.name, Trains: e.payload, UpdatedAt: e.updatedAt}
		if k.direction == lines.Outbound {
			snap.Outbound = append(snap.Outbound, la)
		} else {
			snap.Inbound = append(snap.Inbound, la)
		}
	}
	sortByName(snap.Inbound)
	sortByName(snap.Outbound)
	return snap
}

func sortByName(las []LineArrivals) {
	sort.Slice(las, func(i, j int) bool { return las[i].Name < las[j].Name })
}
