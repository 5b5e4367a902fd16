package models

import (
	"errors"

	nostr "github.com/nbd-wtf/go-nostr"
)

// ErrCountNotSupported signals that a relay rejected the COUNT verb. The
// request client recognizes it with errors.Is and falls back to counting
// query results locally; it is never surfaced to callers.
var ErrCountNotSupported = errors.New("relay does not support COUNT")

// GatewayResponse is the result of an HTTP gateway query. An empty Events
// slice means "no answer here, fall through to the relay tier", not failure.
type GatewayResponse struct {
	Events   []nostr.Event `json:"events"`
	EOSE     bool          `json:"eose"`
	Complete bool          `json:"complete"`
	Cached   bool          `json:"cached"`
}

// CountSource identifies how a count was produced.
type CountSource int

const (
	// CountSourceWebSocket means the relay answered the native COUNT verb.
	CountSourceWebSocket CountSource = iota
	// CountSourceClientSide means the count was derived by running the
	// equivalent query and counting results locally.
	CountSourceClientSide
)

func (s CountSource) String() string {
	if s == CountSourceClientSide {
		return "client_side"
	}
	return "websocket"
}

// CountResponse is the raw relay answer to a COUNT request.
type CountResponse struct {
	Count       int64 `json:"count"`
	Approximate bool  `json:"approximate"`
}

// CountResult is the request client's answer to countEvents, carrying the
// source tier alongside the number.
type CountResult struct {
	Count       int64       `json:"count"`
	Approximate bool        `json:"approximate"`
	Source      CountSource `json:"source"`
}

// BroadcastResult reports the outcome of broadcasting an event across the
// connected relay set.
type BroadcastResult struct {
	Event        *nostr.Event `json:"event,omitempty"`
	TotalRelays  int          `json:"total_relays"`
	SuccessCount int          `json:"success_count"`
	Errors       []string     `json:"errors,omitempty"`
}

// IsSuccessful reports whether at least the primary relay round-trip
// accepted the event.
func (r BroadcastResult) IsSuccessful() bool {
	return r.Event != nil
}
