package models

import "time"

// RelayState represents the connection state of a single relay.
type RelayState int

const (
	RelayStateDisconnected RelayState = iota
	RelayStateConnecting
	RelayStateConnected
	RelayStateAuthenticated
	RelayStateError
)

// String returns the lowercase name of the state.
func (s RelayState) String() string {
	switch s {
	case RelayStateDisconnected:
		return "disconnected"
	case RelayStateConnecting:
		return "connecting"
	case RelayStateConnected:
		return "connected"
	case RelayStateAuthenticated:
		return "authenticated"
	case RelayStateError:
		return "error"
	default:
		return "unknown"
	}
}

// RelayConnectionStatus is an immutable snapshot of a single relay's
// connection state. Transitions replace the value rather than mutate it.
type RelayConnectionStatus struct {
	URL             string     `json:"url"`
	State           RelayState `json:"state"`
	IsDefault       bool       `json:"is_default"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
}

// Disconnected creates a status entry in the disconnected state.
func Disconnected(url string, isDefault bool) RelayConnectionStatus {
	return RelayConnectionStatus{URL: url, State: RelayStateDisconnected, IsDefault: isDefault}
}

// Connecting creates a status entry in the connecting state.
func Connecting(url string, isDefault bool) RelayConnectionStatus {
	return RelayConnectionStatus{URL: url, State: RelayStateConnecting, IsDefault: isDefault}
}

// Connected creates a status entry in the connected state, stamping the
// connection time.
func Connected(url string, isDefault bool) RelayConnectionStatus {
	now := time.Now()
	return RelayConnectionStatus{URL: url, State: RelayStateConnected, IsDefault: isDefault, LastConnectedAt: &now}
}

// Errored creates a status entry in the error state.
func Errored(url string, isDefault bool) RelayConnectionStatus {
	return RelayConnectionStatus{URL: url, State: RelayStateError, IsDefault: isDefault}
}

// IsConnected reports whether the relay is usable for traffic. Authenticated
// is a sub-state of connected.
func (s RelayConnectionStatus) IsConnected() bool {
	return s.State == RelayStateConnected || s.State == RelayStateAuthenticated
}

// HasError reports whether the relay is in the error state.
func (s RelayConnectionStatus) HasError() bool {
	return s.State == RelayStateError
}

// Equal compares by url, state and default flag; the connection timestamp is
// informational and excluded.
func (s RelayConnectionStatus) Equal(other RelayConnectionStatus) bool {
	return s.URL == other.URL && s.State == other.State && s.IsDefault == other.IsDefault
}
