package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when sending on a connection that is no longer alive
	ErrNotConnected = errors.New("connection is not alive")
	// ErrNoAvailableConnections is returned when the pool has no live connection to hand out
	ErrNoAvailableConnections = errors.New("no available connections")
	// ErrTimeout completes a pending call whose deadline elapsed without a response
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionClosed completes every pending call of a closed connection
	ErrConnectionClosed = errors.New("connection closed")
	// ErrPoolClosed is returned by a pool after Close was called
	ErrPoolClosed = errors.New("connection pool is closed")
)

// TransportError wraps a failure of the underlying transport (dial, write,
// handshake or read).
type TransportError struct {
	Op       string
	Endpoint Endpoint
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError
func NewTransportError(op string, endpoint Endpoint, err error) *TransportError {
	return &TransportError{Op: op, Endpoint: endpoint, Err: err}
}

// ServerError is the error returned by the server in an error frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// IsRetryable reports whether a request that failed with err may be retried
// on another connection. Server errors and a closed pool are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return false
	}
	if errors.Is(err, ErrPoolClosed) {
		return false
	}
	var transportErr *TransportError
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrNoAvailableConnections) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionClosed) ||
		errors.As(err, &transportErr)
}
