package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	nostr "github.com/nbd-wtf/go-nostr"
)

// MemoryEventDao is a bounded in-memory event store used as the cache tier
// when no database is configured. Eviction is insertion-ordered: once the
// bound is reached the oldest-inserted event is dropped.
type MemoryEventDao struct {
	mu      sync.RWMutex
	events  map[string]nostr.Event
	order   []string
	maxSize int
}

// NewMemoryEventDao creates a store bounded at maxSize events.
func NewMemoryEventDao(maxSize int) *MemoryEventDao {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryEventDao{
		events:  make(map[string]nostr.Event),
		maxSize: maxSize,
	}
}

// GetEventsByFilter returns cached events matching the filter, newest first,
// capped at the filter limit.
func (m *MemoryEventDao) GetEventsByFilter(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]nostr.Event, 0, constants.DefaultQueryPrealloc)
	for _, evt := range m.events {
		if filter.Matches(&evt) {
			results = append(results, evt)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt > results[j].CreatedAt
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// GetEventByID returns the cached event with the given id, or nil.
func (m *MemoryEventDao) GetEventByID(ctx context.Context, id string) (*nostr.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if evt, ok := m.events[id]; ok {
		return &evt, nil
	}
	return nil, nil
}

// GetProfileByPubkey returns the newest cached metadata event for a pubkey,
// or nil.
func (m *MemoryEventDao) GetProfileByPubkey(ctx context.Context, pubkey string) (*nostr.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *nostr.Event
	for id := range m.events {
		evt := m.events[id]
		if evt.Kind != constants.KindProfileMetadata || evt.PubKey != pubkey {
			continue
		}
		if newest == nil || evt.CreatedAt > newest.CreatedAt {
			newest = &evt
		}
	}
	return newest, nil
}

// UpsertEvent stores one event; known ids are a no-op.
func (m *MemoryEventDao) UpsertEvent(ctx context.Context, evt nostr.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(evt)
	return nil
}

// UpsertEventsBatch stores many events under one lock acquisition.
func (m *MemoryEventDao) UpsertEventsBatch(ctx context.Context, events []nostr.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range events {
		m.insert(evt)
	}
	return nil
}

// Len returns the number of cached events.
func (m *MemoryEventDao) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *MemoryEventDao) insert(evt nostr.Event) {
	if evt.ID == "" {
		return
	}
	if _, ok := m.events[evt.ID]; ok {
		return
	}
	m.events[evt.ID] = evt
	m.order = append(m.order, evt.ID)
	for len(m.events) > m.maxSize {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.events, oldest)
	}
}
