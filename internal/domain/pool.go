package domain

import "context"

// RelayHandle is a live transport-level connection held by the pool.
type RelayHandle interface {
	URL() string
	Connected() bool
}

// ConnectionPool maintains transport-level connections to relay endpoints.
// The relay manager drives pool membership to match its configured set; the
// pool owns the sockets.
type ConnectionPool interface {
	// Add opens a connection to url. The boolean reports whether the
	// connection is usable; a returned error carries the transport failure.
	Add(ctx context.Context, url string) (bool, error)

	// Remove closes and forgets the connection to url, if any.
	Remove(ctx context.Context, url string) error

	// ActiveRelays lists the currently held connections, connected or not.
	ActiveRelays() []RelayHandle
}
