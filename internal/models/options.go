package models

import "time"

// RelayType classifies which part of the relay set an operation should use.
type RelayType string

const (
	RelayTypeRead  RelayType = "read"
	RelayTypeWrite RelayType = "write"
	RelayTypeBoth  RelayType = "both"
)

// QueryOptions tunes a single read operation. A nil *QueryOptions means
// DefaultQueryOptions().
type QueryOptions struct {
	// SubscriptionID is the caller-suggested subscription id. The relay
	// protocol may substitute its own; the substituted id is authoritative.
	SubscriptionID string
	// TempRelays are relay URLs used for this operation only, without
	// entering the configured set.
	TempRelays []string
	// RelayTypes restricts which configured relays serve the operation.
	RelayTypes []RelayType
	// SendAfterAuth defers the request until the relay AUTH handshake
	// completes.
	SendAfterAuth bool
	// UseGateway allows the HTTP gateway fast path. On by default.
	UseGateway bool
	// RelayURL scopes a point lookup to a single relay.
	RelayURL string
	// Timeout bounds the relay round trip. Honored by countEvents; other
	// operations rely on transport timeouts.
	Timeout time.Duration
}

// DefaultQueryOptions returns the options applied when the caller passes nil.
func DefaultQueryOptions() *QueryOptions {
	return &QueryOptions{UseGateway: true}
}

// PublishOptions tunes a single write operation.
type PublishOptions struct {
	// TempRelays are additional relay URLs targeted for this send only.
	TempRelays []string
	// TargetRelays restricts the send to the named relays.
	TargetRelays []string
}
