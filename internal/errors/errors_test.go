package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := New(ErrorTypeValidation, "BAD_URL", "relay URL rejected")
	assert.Equal(t, "[validation:BAD_URL] relay URL rejected", err.Error())
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.False(t, err.Timestamp.IsZero())

	err.WithDetails("scheme must be ws or wss")
	assert.Equal(t, "[validation:BAD_URL] relay URL rejected: scheme must be ws or wss", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrorTypeInternal, "INTERNAL", "something broke")

	assert.Equal(t, "boom", err.Details)
	assert.True(t, stderrors.Is(err, cause), "wrapped cause must survive errors.Is")

	var appErr *AppError
	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, stderrors.As(wrapped, &appErr))
	assert.Equal(t, "INTERNAL", appErr.Code)
}

func TestWithSeverity(t *testing.T) {
	err := New(ErrorTypeDatabase, "DB_ERROR", "query failed").WithSeverity(SeverityCritical)
	assert.Equal(t, SeverityCritical, err.Severity)
}

func TestConnectionErrorClassification(t *testing.T) {
	cases := []struct {
		name     string
		cause    error
		code     string
		severity ErrorSeverity
	}{
		{
			name:     "normal closure",
			cause:    &websocket.CloseError{Code: websocket.CloseNormalClosure},
			code:     "WS_NORMAL_CLOSURE",
			severity: SeverityLow,
		},
		{
			name:     "going away",
			cause:    &websocket.CloseError{Code: websocket.CloseGoingAway},
			code:     "WS_ABNORMAL_CLOSURE",
			severity: SeverityMedium,
		},
		{
			name:     "unexpected close",
			cause:    &websocket.CloseError{Code: websocket.ClosePolicyViolation},
			code:     "WS_UNEXPECTED_CLOSURE",
			severity: SeverityMedium,
		},
		{
			name:     "connection refused",
			cause:    fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
			code:     "WS_CONNECTION_REFUSED",
			severity: SeverityMedium,
		},
		{
			name:     "deadline exceeded",
			cause:    context.DeadlineExceeded,
			code:     "WS_TIMEOUT",
			severity: SeverityMedium,
		},
		{
			name:     "anything else",
			cause:    stderrors.New("tls handshake failure"),
			code:     "WS_ERROR",
			severity: SeverityMedium,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ConnectionError("wss://relay.damus.io", tc.cause)
			assert.Equal(t, ErrorTypeTransport, err.Type)
			assert.Equal(t, tc.code, err.Code)
			assert.Equal(t, tc.severity, err.Severity)
			assert.True(t, stderrors.Is(err, tc.cause))
			assert.Contains(t, err.Message, "wss://relay.damus.io")
		})
	}
}

func TestDatabaseError(t *testing.T) {
	err := DatabaseError("upsert", stderrors.New("connection reset"))
	assert.Equal(t, "DB_ERROR", err.Code)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Contains(t, err.Message, "upsert")

	timeoutErr := DatabaseError("query", context.DeadlineExceeded)
	assert.Equal(t, "DB_TIMEOUT", timeoutErr.Code)
	assert.Equal(t, SeverityMedium, timeoutErr.Severity)
}

func TestGatewayRequestErrorIsLowSeverity(t *testing.T) {
	err := GatewayRequestError("/v1/events", stderrors.New("502 bad gateway"))
	assert.Equal(t, ErrorTypeGateway, err.Type)
	assert.Equal(t, "GATEWAY_ERROR", err.Code)
	assert.Equal(t, SeverityLow, err.Severity)
	assert.Contains(t, err.Message, "/v1/events")
}
