package roomcast

import "errors"

var (
	// ErrAuthRejected is returned when an admission middleware rejects the
	// handshake. The middleware's own error is joined for inspection.
	ErrAuthRejected = errors.New("roomcast: admission rejected")

	// ErrTransportGone is returned when the transport closed before admission
	// completed. No registry state is left behind.
	ErrTransportGone = errors.New("roomcast: transport closed during admission")

	// ErrAckTimeout is returned to a caller waiting on an acknowledgment that
	// did not arrive within the configured timeout.
	ErrAckTimeout = errors.New("roomcast: acknowledgment timeout")

	// ErrBackplaneUnavailable signals that a backplane publish failed and the
	// broadcast degraded to local-only delivery.
	ErrBackplaneUnavailable = errors.New("roomcast: backplane unavailable")

	// ErrReconnectExhausted is the terminal reconnection failure, raised once
	// the attempt counter exceeds its configured maximum.
	ErrReconnectExhausted = errors.New("roomcast: reconnect attempts exhausted")

	// ErrServerClosed is returned for operations on a closed server.
	ErrServerClosed = errors.New("roomcast: server closed")
)
