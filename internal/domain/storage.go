package domain

import (
	"context"

	nostr "github.com/nbd-wtf/go-nostr"
)

// RelayStorage persists the ordered configured-relay list across restarts.
type RelayStorage interface {
	// LoadRelays returns the persisted relay URLs, possibly empty.
	LoadRelays(ctx context.Context) ([]string, error)

	// SaveRelays replaces the persisted relay list. Implementations must
	// copy the slice so later caller mutation cannot leak into storage.
	SaveRelays(ctx context.Context, urls []string) error
}

// EventDao is the narrow cache interface over the local event store. A nil
// EventDao means caching is disabled, not an error.
type EventDao interface {
	// GetEventsByFilter returns cached events matching a single filter.
	GetEventsByFilter(ctx context.Context, filter nostr.Filter) ([]nostr.Event, error)

	// GetEventByID returns the cached event with the given id, or nil.
	GetEventByID(ctx context.Context, id string) (*nostr.Event, error)

	// GetProfileByPubkey returns the cached metadata event for a pubkey, or nil.
	GetProfileByPubkey(ctx context.Context, pubkey string) (*nostr.Event, error)

	// UpsertEvent stores one event. Events are immutable; storing a known id
	// is a no-op.
	UpsertEvent(ctx context.Context, evt nostr.Event) error

	// UpsertEventsBatch stores many events in one round trip.
	UpsertEventsBatch(ctx context.Context, events []nostr.Event) error
}
