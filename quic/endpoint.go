package quic

// ReadableHandler produces the runnable on_readable() hands back to the
// caller: the protocol-layer Connection built on top of this endpoint
// registers one to pull bytes via Fill and parse whatever framing it
// owns. Frame parsing itself is out of scope for this package.
type ReadableHandler func() func()

// StreamEndPoint is a thin byte-stream adapter over one QUIC stream id.
// It holds no buffering of its own; every operation forwards directly to
// the owning Session's fill/flush/shutdown for its id. It does not own
// the session and must not outlive it.
type StreamEndPoint struct {
	id      uint64
	session *Session

	onReadable ReadableHandler
	onWritable func()
}

func newStreamEndPoint(id uint64, session *Session) *StreamEndPoint {
	return &StreamEndPoint{id: id, session: session}
}

// ID returns the QUIC stream id this endpoint wraps.
func (ep *StreamEndPoint) ID() uint64 { return ep.id }

// Fill reads available application bytes for this stream into buf,
// returning the number of bytes read.
func (ep *StreamEndPoint) Fill(buf []byte) (int, error) {
	return ep.session.fill(ep.id, buf)
}

// Flush writes buf to this stream, returning the number of bytes
// accepted, and triggers an implicit egress flush.
func (ep *StreamEndPoint) Flush(buf []byte) (int, error) {
	return ep.session.flush(ep.id, buf)
}

// FlushFinished marks the write side finished once all buffered bytes
// have been accepted by the transport.
func (ep *StreamEndPoint) FlushFinished() error {
	return ep.session.flushFinished(ep.id)
}

// IsFinished reports true when the transport does not list this stream
// among its writable stream ids. It does not check whether FlushFinished
// was called.
func (ep *StreamEndPoint) IsFinished() bool {
	return ep.session.isFinished(ep.id)
}

// ShutdownInput half-closes the read side.
func (ep *StreamEndPoint) ShutdownInput() error {
	return ep.session.shutdownInput(ep.id)
}

// ShutdownOutput half-closes the write side.
func (ep *StreamEndPoint) ShutdownOutput() error {
	return ep.session.shutdownOutput(ep.id)
}

// SetReadableHandler installs the protocol layer's callback. Called once
// by the ConnectionFactory immediately after construction.
func (ep *StreamEndPoint) SetReadableHandler(h ReadableHandler) { ep.onReadable = h }

// SetWritableHandler installs the callback OnWritable invokes.
func (ep *StreamEndPoint) SetWritableHandler(h func()) { ep.onWritable = h }

// OnReadable returns a runnable to be executed (by the session's
// executor, as its own task) now that this stream has data available.
// Returns nil if no handler has been installed.
func (ep *StreamEndPoint) OnReadable() func() {
	if ep.onReadable == nil {
		return nil
	}
	return ep.onReadable()
}

// OnWritable wakes any goroutine blocked waiting to write on this stream.
func (ep *StreamEndPoint) OnWritable() {
	if ep.onWritable != nil {
		ep.onWritable()
	}
}

// Close removes this endpoint from the owning session's stream map. Safe
// to call more than once.
func (ep *StreamEndPoint) Close() {
	ep.session.removeEndpoint(ep.id)
}
