package quic

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Session is the per-connection I/O driver: it feeds ciphertext in,
// drains ciphertext out via its Flusher, discovers readable/writable
// stream ids from the Transport, dispatches the resulting work through
// an Executor, and owns every StreamEndPoint created for this connection.
type Session struct {
	transport Transport
	cfg       Config
	factories map[string]ConnectionFactory
	listener  Listener

	flusher *Flusher

	mu         sync.Mutex
	remoteAddr string
	endpoints  map[uint64]*StreamEndPoint
	connByID   map[uint64]Connection
	closed     bool
}

// NewSession constructs a Session around transport. factories maps an
// ALPN protocol string to the ConnectionFactory that handles it; a
// negotiated protocol with no matching factory closes the session with
// ErrNoConnectionFactory the first time a stream is created.
func NewSession(transport Transport, cfg Config, factories map[string]ConnectionFactory, listener Listener) *Session {
	s := &Session{
		transport: transport,
		cfg:       cfg,
		factories: factories,
		listener:  listener,
		endpoints: make(map[uint64]*StreamEndPoint),
		connByID:  make(map[uint64]Connection),
	}
	s.flusher = newFlusher(s, cfg.Scheduler)
	return s
}

// RemoteAddr returns the address most recently observed via OnIngress.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// OnIngress feeds a received datagram's ciphertext to the transport and
// dispatches the resulting readable/writable stream work. Before the
// handshake completes there are no streams to speak of yet, so ingress
// instead triggers a flusher iteration directly (the handshake itself
// produces outbound flight ciphertext that must go out promptly).
func (s *Session) OnIngress(remoteAddr string, datagram []byte) error {
	s.mu.Lock()
	s.remoteAddr = remoteAddr
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	if err := s.transport.FeedCipher(remoteAddr, datagram); err != nil {
		cause := newTransportError(ErrCodeInternalError, err)
		s.closeWithCause(cause)
		return cause
	}

	if !s.transport.IsEstablished() {
		s.flusher.iterate()
		return nil
	}

	var tasks []func()
	writable := s.transport.WritableStreamIDs()
	if len(writable) > 0 {
		ids := append([]uint64(nil), writable...)
		tasks = append(tasks, func() { s.dispatchWritable(ids) })
	}

	for _, id := range s.transport.ReadableStreamIDs() {
		id := id
		tasks = append(tasks, func() { s.dispatchReadable(id) })
	}

	// The ingress goroutine runs the first task itself; the rest are
	// offered to the executor.
	for i, task := range tasks {
		if i == 0 {
			task()
			continue
		}
		s.cfg.Executor.Dispatch(task)
	}
	return nil
}

func (s *Session) dispatchWritable(ids []uint64) {
	for _, id := range ids {
		ep, err := s.GetOrCreateEndpoint(id)
		if err != nil {
			logger := s.cfg.logger()
			logger.Debug().Err(err).Uint64("stream", id).Msg("quic: writable stream dispatch failed")
			continue
		}
		ep.OnWritable()
	}
}

func (s *Session) dispatchReadable(id uint64) {
	ep, err := s.GetOrCreateEndpoint(id)
	if err != nil {
		logger := s.cfg.logger()
		logger.Debug().Err(err).Uint64("stream", id).Msg("quic: readable stream dispatch failed")
		return
	}
	if runnable := ep.OnReadable(); runnable != nil {
		runnable()
	}
}

// CreateStream creates a new endpoint for id, or fails with
// ErrDuplicateStream if one already exists: the only entry point with
// that failure mode, for call sites modeling an explicit user-facing
// "open a new stream" action. See GetOrCreateEndpoint for the
// never-fails variant.
func (s *Session) CreateStream(id uint64) (*StreamEndPoint, error) {
	s.mu.Lock()
	if _, exists := s.endpoints[id]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateStream
	}
	ep, protoErr, err := s.getOrCreateEndpointLocked(id)
	s.mu.Unlock()
	if protoErr != nil {
		s.closeWithCause(protoErr)
	}
	return ep, err
}

// GetOrCreateEndpoint atomically returns the existing endpoint for id, or
// creates one. This is the single canonical stream-creation site; every
// other path (CreateStream, ingress dispatch) funnels through it. It
// never returns ErrDuplicateStream.
func (s *Session) GetOrCreateEndpoint(id uint64) (*StreamEndPoint, error) {
	s.mu.Lock()
	ep, protoErr, err := s.getOrCreateEndpointLocked(id)
	s.mu.Unlock()
	if protoErr != nil {
		s.closeWithCause(protoErr)
	}
	return ep, err
}

// getOrCreateEndpointLocked must be called with s.mu held. A non-nil
// protoErr means the session must be closed once the caller has released
// the lock (closeWithCause takes s.mu itself, so it cannot be called
// from here directly).
func (s *Session) getOrCreateEndpointLocked(id uint64) (ep *StreamEndPoint, protoErr, err error) {
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	if existing, ok := s.endpoints[id]; ok {
		return existing, nil, nil
	}

	protocol := s.transport.ALPNProtocol()
	factory, ok := s.factories[protocol]
	if !ok {
		wrapped := errors.Wrapf(ErrNoConnectionFactory, "alpn protocol %q", protocol)
		return nil, newSessionException(ErrCodeProtocolError, "%s", wrapped), wrapped
	}

	newEP := newStreamEndPoint(id, s)
	s.endpoints[id] = newEP

	conn, err := factory.NewConnection(context.Background(), newEP)
	if err != nil {
		delete(s.endpoints, id)
		return nil, nil, errors.Wrap(err, "quic: connection factory")
	}
	s.connByID[id] = conn
	return newEP, nil, nil
}

func (s *Session) lookupEndpoint(id uint64) *StreamEndPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[id]
}

func (s *Session) removeEndpoint(id uint64) {
	s.mu.Lock()
	delete(s.endpoints, id)
	delete(s.connByID, id)
	s.mu.Unlock()
}

// fill reads available application bytes for streamID.
func (s *Session) fill(streamID uint64, buf []byte) (int, error) {
	return s.transport.DrainClear(streamID, buf)
}

// flush writes buf to streamID and triggers an implicit egress flush so
// the bytes just accepted by the transport go out promptly rather than
// waiting for the next ingress event or timer.
func (s *Session) flush(streamID uint64, buf []byte) (int, error) {
	n, err := s.transport.FeedClear(streamID, buf)
	if err != nil {
		return n, err
	}
	if s.flusher.State() != flusherScheduled {
		s.flusher.iterate()
	}
	return n, nil
}

func (s *Session) flushFinished(streamID uint64) error {
	return s.transport.FeedFin(streamID)
}

func (s *Session) isFinished(streamID uint64) bool {
	for _, id := range s.transport.WritableStreamIDs() {
		if id == streamID {
			return false
		}
	}
	return true
}

func (s *Session) shutdownInput(streamID uint64) error {
	return s.transport.ShutdownStream(streamID, true)
}

func (s *Session) shutdownOutput(streamID uint64) error {
	return s.transport.ShutdownStream(streamID, false)
}

// Close closes every endpoint, stops the flusher, notifies each stream's
// Connection and then the listener, then unconditionally disposes the transport even if an earlier step
// panicked or a listener callback panicked: native memory release must
// never be skipped. Idempotent.
func (s *Session) Close() error {
	return s.closeWithCause(nil)
}

func (s *Session) closeWithCause(cause error) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	endpoints := make([]*StreamEndPoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		endpoints = append(endpoints, ep)
	}
	s.endpoints = make(map[uint64]*StreamEndPoint)
	conns := make([]Connection, 0, len(s.connByID))
	for _, conn := range s.connByID {
		conns = append(conns, conn)
	}
	remoteAddr := s.remoteAddr
	s.mu.Unlock()

	defer func() {
		// transport.Dispose must run even if a listener callback above
		// panicked; recover, log, and still dispose.
		if r := recover(); r != nil {
			logger := s.cfg.logger()
			logger.Error().Interface("panic", r).Msg("quic: panic during session close, disposing transport anyway")
		}
		s.transport.Dispose()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SessionCloses.Inc()
		}
	}()

	for _, ep := range endpoints {
		ep.Close()
	}
	s.flusher.stop()
	for _, conn := range conns {
		if conn != nil {
			conn.OnClose(cause)
		}
	}

	if s.listener != nil {
		s.notifyListener(remoteAddr, cause)
	}

	return cause
}

// notifyListener calls the listener's callback with panic recovery: a
// faulty listener must not prevent Session.Close from disposing the
// transport or take the rest of the process down.
func (s *Session) notifyListener(remoteAddr string, cause error) {
	defer func() {
		if r := recover(); r != nil {
			logger := s.cfg.logger()
			logger.Error().Interface("panic", r).Msg("quic: listener callback panicked")
		}
	}()
	s.listener.OnSessionClosed(remoteAddr, cause)
}
