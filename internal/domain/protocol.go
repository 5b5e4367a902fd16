package domain

import (
	"context"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
)

// EventCallback is invoked once per event delivered on a live subscription.
type EventCallback func(evt nostr.Event)

// RelayProtocol exposes the raw Nostr verbs over whatever relay connections
// the pool currently holds. Every send method returns the accepted event or
// nil on failure; retries are a transport concern and do not happen here.
type RelayProtocol interface {
	// PublicKey returns the hex public key the engine signs with, empty when
	// no keys are configured.
	PublicKey() string

	// SendEvent publishes an already-signed event.
	SendEvent(ctx context.Context, evt nostr.Event, opts *models.PublishOptions) (*nostr.Event, error)

	// QueryEvents runs a one-shot query across the relay set and returns the
	// merged, deduplicated results after EOSE.
	QueryEvents(ctx context.Context, filters []nostr.Filter, opts *models.QueryOptions) ([]nostr.Event, error)

	// Subscribe opens a live subscription. The returned id is the effective
	// subscription id, which may differ from the requested one, and is the
	// id Unsubscribe expects.
	Subscribe(ctx context.Context, filters []nostr.Filter, subID string, onEvent EventCallback, opts *models.QueryOptions) (string, error)

	// Unsubscribe closes a live subscription. Unknown ids are not an error.
	Unsubscribe(ctx context.Context, subID string) error

	// CountEvents runs the native COUNT verb. When the relay rejects the
	// verb the error unwraps to models.ErrCountNotSupported.
	CountEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) (*models.CountResponse, error)

	// SendLike publishes a kind-7 reaction to the target event.
	SendLike(ctx context.Context, target *nostr.Event, content string, opts *models.PublishOptions) (*nostr.Event, error)

	// SendRepost publishes a repost of the target event, tagging relayAddr
	// as the recommended source.
	SendRepost(ctx context.Context, target *nostr.Event, relayAddr, content string, opts *models.PublishOptions) (*nostr.Event, error)

	// DeleteEvent publishes a kind-5 deletion for one event id.
	DeleteEvent(ctx context.Context, eventID string, opts *models.PublishOptions) (*nostr.Event, error)

	// DeleteEvents publishes a single kind-5 deletion covering several ids.
	DeleteEvents(ctx context.Context, eventIDs []string, opts *models.PublishOptions) (*nostr.Event, error)

	// SendContactList publishes a kind-3 contact list.
	SendContactList(ctx context.Context, contacts nostr.Tags, content string, opts *models.PublishOptions) (*nostr.Event, error)

	// Close tears down the engine and every open subscription.
	Close() error
}
