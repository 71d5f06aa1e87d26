package quic

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes surfaced to the owning connection on session close. Distinct
// from the qpack package's codes since they travel on a different channel
// (QUIC CONNECTION_CLOSE vs. the QPACK decoder stream).
const (
	ErrCodeNoError         = 0x00
	ErrCodeInternalError   = 0x01
	ErrCodeProtocolError   = 0x0a
	ErrCodeApplicationAway = 0x10
)

// SessionException is connection-fatal: a transport-reported protocol
// violation or an internal invariant break. The session closes with this
// code and the owning connection is notified.
type SessionException struct {
	Code    uint64
	Message string
}

func (e *SessionException) Error() string {
	return fmt.Sprintf("quic: session exception %#x: %s", e.Code, e.Message)
}

func newSessionException(code uint64, format string, args ...interface{}) *SessionException {
	return &SessionException{Code: code, Message: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failure reported by the Transport collaborator.
// The session closes with its code; it is never swallowed.
type TransportError struct {
	Code  uint64
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("quic: transport error %#x: %v", e.Code, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func newTransportError(code uint64, cause error) *TransportError {
	return &TransportError{Code: code, Cause: errors.WithStack(cause)}
}

// ResourceError signals a buffer-pool or allocation failure. It is logged
// and the current flusher iteration fails, but the session stays open: a
// momentary allocation failure must not tear down a healthy connection.
type ResourceError struct {
	Cause error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("quic: resource error: %v", e.Cause)
}

func (e *ResourceError) Unwrap() error { return e.Cause }

func newResourceError(cause error) *ResourceError {
	return &ResourceError{Cause: errors.WithStack(cause)}
}

// ErrDuplicateStream is returned by Session.CreateStream when an endpoint
// for the requested id already exists; GetOrCreateEndpoint never returns
// it, since it is defined to silently return the existing endpoint.
var ErrDuplicateStream = errors.New("quic: stream already exists")

// ErrSessionClosed is returned by operations attempted after Close.
var ErrSessionClosed = errors.New("quic: session closed")

// ErrNoConnectionFactory is the protocol error used to close the session
// when the ALPN-selected protocol matches no registered connection
// factory at stream-creation time.
var ErrNoConnectionFactory = errors.New("quic: no connection factory for negotiated protocol")
