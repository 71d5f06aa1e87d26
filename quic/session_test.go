package quic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnection struct {
	closeCause error
}

func (c *fakeConnection) OnClose(cause error) { c.closeCause = cause }

type fakeFactory struct {
	conn *fakeConnection
	err  error
}

func (f *fakeFactory) NewConnection(ctx context.Context, ep *StreamEndPoint) (Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func newSessionWithFactory(t *testing.T, transport *fakeTransport, factories map[string]ConnectionFactory) *Session {
	t.Helper()
	cfg := Config{
		Executor:   SyncExecutor{},
		BufferPool: NewDefaultBufferPool(),
		Scheduler:  &fakeScheduler{},
		Sink:       &fakeSink{},
	}
	return NewSession(transport, cfg, factories, nil)
}

func TestGetOrCreateEndpointIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	transport.alpn = "h3"
	factory := &fakeFactory{conn: &fakeConnection{}}
	session := newSessionWithFactory(t, transport, map[string]ConnectionFactory{"h3": factory})

	ep1, err := session.GetOrCreateEndpoint(4)
	require.NoError(t, err)
	ep2, err := session.GetOrCreateEndpoint(4)
	require.NoError(t, err)
	assert.Same(t, ep1, ep2, "GetOrCreateEndpoint must return the same endpoint for a repeated id")
}

func TestCreateStreamRejectsDuplicate(t *testing.T) {
	transport := newFakeTransport()
	transport.alpn = "h3"
	factory := &fakeFactory{conn: &fakeConnection{}}
	session := newSessionWithFactory(t, transport, map[string]ConnectionFactory{"h3": factory})

	_, err := session.CreateStream(8)
	require.NoError(t, err)

	_, err = session.CreateStream(8)
	assert.ErrorIs(t, err, ErrDuplicateStream)
}

func TestStreamCreationClosesSessionOnUnknownALPN(t *testing.T) {
	transport := newFakeTransport()
	transport.alpn = "unsupported/1"
	session := newSessionWithFactory(t, transport, map[string]ConnectionFactory{"h3": &fakeFactory{}})

	_, err := session.CreateStream(0)
	assert.Error(t, err)
	assert.True(t, transport.disposed, "an unmatched ALPN protocol must close (and dispose) the session")
}

func TestCloseIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	session := newSessionWithFactory(t, transport, nil)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.Equal(t, 1, transport.disposeCalls, "Dispose must run exactly once across repeated Close calls")
}

func TestCloseDisposesTransportEvenWhenListenerPanics(t *testing.T) {
	transport := newFakeTransport()
	cfg := Config{
		Executor:   SyncExecutor{},
		BufferPool: NewDefaultBufferPool(),
		Scheduler:  &fakeScheduler{},
		Sink:       &fakeSink{},
	}
	session := NewSession(transport, cfg, nil, panicListener{})

	assert.NotPanics(t, func() {
		_ = session.Close()
	})
	assert.True(t, transport.disposed)
}

type panicListener struct{}

func (panicListener) OnSessionClosed(remoteAddr string, cause error) {
	panic("listener exploded")
}

func TestOperationsAfterCloseFailWithSessionClosed(t *testing.T) {
	transport := newFakeTransport()
	session := newSessionWithFactory(t, transport, nil)
	require.NoError(t, session.Close())

	_, err := session.GetOrCreateEndpoint(1)
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = session.OnIngress("1.2.3.4:9", []byte("x"))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
