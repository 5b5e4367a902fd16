package domain

import (
	"context"

	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
)

// GatewayClient is the optional HTTP fast path in front of relay queries.
// A nil GatewayClient disables the tier. Any error from these methods is
// treated by the request client as "fall through to the relay tier".
type GatewayClient interface {
	// Query answers a single-filter query.
	Query(ctx context.Context, filter nostr.Filter) (*models.GatewayResponse, error)

	// GetEvent looks up a single event by id, nil when unknown.
	GetEvent(ctx context.Context, id string) (*nostr.Event, error)

	// GetProfile looks up the metadata event for a pubkey, nil when unknown.
	GetProfile(ctx context.Context, pubkey string) (*nostr.Event, error)
}
