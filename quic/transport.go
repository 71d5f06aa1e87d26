// Package quic drives a per-connection QUIC session on top of an opaque,
// non-thread-safe transport engine: it feeds and drains ciphertext,
// dispatches readable/writable stream events, and owns the egress flusher
// and its single re-armable timer. The cryptographic and congestion-control
// machinery itself is out of scope; Transport is the seam.
package quic

import (
	"context"
	"time"
)

// QUICHEMinClientInitialLen is the minimum UDP datagram capacity the
// flusher must request from the buffer pool so that an initial client
// packet is never truncated, mirroring quiche's own constant.
const QUICHEMinClientInitialLen = 1200

// Transport is the opaque, non-thread-safe QUIC engine collaborator.
// Every call into it must happen while the owning Session's task queue is
// draining (at most one task runs at a time with respect to a given
// Transport instance); see the concurrency model in the package docs.
type Transport interface {
	// FeedCipher hands a received datagram's ciphertext to the engine.
	// Fails with a *TransportError on a fatal protocol violation.
	FeedCipher(remoteAddr string, datagram []byte) error

	// DrainCipher fills buf with outbound ciphertext ready to send,
	// returning the number of bytes written. Returns 0 when there is
	// nothing to send right now (not necessarily an error).
	DrainCipher(buf []byte) (int, error)

	// FeedClear writes application bytes to an outbound stream, returning
	// the number of bytes accepted.
	FeedClear(streamID uint64, buf []byte) (int, error)

	// DrainClear reads application bytes from an inbound stream.
	DrainClear(streamID uint64, buf []byte) (int, error)

	// FeedFin marks a stream's write side as finished.
	FeedFin(streamID uint64) error

	// ShutdownStream half-closes a stream in the given direction.
	ShutdownStream(streamID uint64, read bool) error

	// IsEstablished reports whether the handshake has completed.
	IsEstablished() bool

	// ReadableStreamIDs returns stream ids with data ready to read.
	ReadableStreamIDs() []uint64

	// WritableStreamIDs returns stream ids ready to accept more data.
	WritableStreamIDs() []uint64

	// NextTimeout returns the engine's requested timer deadline in
	// milliseconds from now, or a negative value if no timer is needed.
	NextTimeout() int64

	// OnTimeout notifies the engine that its requested timer fired.
	OnTimeout()

	// IsConnectionClosed reports whether the engine has torn the
	// connection down (peer CONNECTION_CLOSE, idle timeout, etc).
	IsConnectionClosed() bool

	// ALPNProtocol returns the negotiated application protocol, valid
	// once IsEstablished reports true.
	ALPNProtocol() string

	// Dispose releases native/engine-owned resources. Idempotent. Must be
	// called exactly once, unconditionally, as Session.Close tears down.
	Dispose()
}

// Buffer is a pooled byte-slice handle. Every Buffer returned by
// BufferPool.Acquire must be passed to Release exactly once.
type Buffer struct {
	Bytes []byte
	class int
}

// Len returns the usable length of the buffer.
func (b *Buffer) Len() int { return len(b.Bytes) }

// BufferPool is the external, thread-safe pooled-buffer collaborator.
type BufferPool interface {
	// Acquire returns a buffer with capacity at least minCapacity.
	// directHint suggests (but does not require) an unpooled allocation
	// for unusually large or long-lived buffers.
	Acquire(minCapacity int, directHint bool) *Buffer

	// Release returns a buffer to the pool. Safe to call at most once per
	// Buffer obtained from Acquire.
	Release(*Buffer)
}

// Scheduler is a single re-armable, idempotently-cancellable one-shot
// timer. The flusher is its sole caller: at most one outstanding
// expiry is ever live, and Schedule always supersedes whatever was
// scheduled before, canceling it first.
type Scheduler interface {
	// Schedule cancels any previously armed expiry and arms a new one to
	// fire fn after delay elapses. delay < 0 cancels without rearming.
	Schedule(delay time.Duration, fn func())

	// Cancel stops any outstanding expiry. Idempotent.
	Cancel()
}

// DatagramSink is the UDP socket collaborator the flusher writes
// outbound ciphertext to. The write is asynchronous: onComplete runs
// exactly once, with a non-nil error only on a genuine send failure.
type DatagramSink interface {
	WriteAsync(remoteAddr string, datagram []byte, onComplete func(error))
}

// ConnectionFactory builds the protocol-specific connection object for a
// newly created StreamEndPoint once its ALPN protocol is known. Session
// consults the registry keyed by ALPN string at stream-creation time; no
// match closes the session with ErrNoConnectionFactory.
type ConnectionFactory interface {
	NewConnection(ctx context.Context, ep *StreamEndPoint) (Connection, error)
}

// Connection is the minimal lifecycle surface of whatever protocol-layer
// object a ConnectionFactory produces; the core only ever needs to notify
// it of an owning session's shutdown.
type Connection interface {
	OnClose(cause error)
}

// Listener observes connection-level events reported by the Session.
// Per §7, a panicking listener callback must not take the session down:
// callers recover and log instead of propagating.
type Listener interface {
	OnSessionClosed(remoteAddr string, cause error)
}
