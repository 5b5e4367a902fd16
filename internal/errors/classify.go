package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// Client-specific error constructors

// ConnectionError creates an error for relay WebSocket issues, classifying
// the close reason so callers can log at the right level.
func ConnectionError(relayURL string, cause error) *AppError {
	var code string
	var severity ErrorSeverity

	switch {
	case websocket.IsCloseError(cause, websocket.CloseNormalClosure):
		code = "WS_NORMAL_CLOSURE"
		severity = SeverityLow
	case websocket.IsCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "WS_ABNORMAL_CLOSURE"
		severity = SeverityMedium
	case websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "WS_UNEXPECTED_CLOSURE"
		severity = SeverityMedium
	case isConnectionRefused(cause):
		code = "WS_CONNECTION_REFUSED"
		severity = SeverityMedium
	case isTimeout(cause):
		code = "WS_TIMEOUT"
		severity = SeverityMedium
	default:
		code = "WS_ERROR"
		severity = SeverityMedium
	}

	return Wrap(cause, ErrorTypeTransport, code, fmt.Sprintf("relay connection to %s failed", relayURL)).
		WithSeverity(severity)
}

// DatabaseError creates an error for event cache database issues.
func DatabaseError(operation string, cause error) *AppError {
	code := "DB_ERROR"
	severity := SeverityHigh
	if isTimeout(cause) {
		code = "DB_TIMEOUT"
		severity = SeverityMedium
	}
	return Wrap(cause, ErrorTypeDatabase, code, fmt.Sprintf("database %s failed", operation)).
		WithSeverity(severity)
}

// GatewayRequestError creates an error for gateway HTTP issues. These are
// always low severity because the relay tier backs the gateway up.
func GatewayRequestError(path string, cause error) *AppError {
	return Wrap(cause, ErrorTypeGateway, "GATEWAY_ERROR", fmt.Sprintf("gateway request %s failed", path)).
		WithSeverity(SeverityLow)
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
