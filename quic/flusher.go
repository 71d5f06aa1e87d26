package quic

import (
	"sync"
	"time"
)

// flusherState is the iterating egress state machine's result for one
// iteration.
type flusherState int

const (
	// flusherIdle means there was no ciphertext to emit; the caller
	// should re-iterate on the next event (ingress datagram, stream
	// write, or timer expiry).
	flusherIdle flusherState = iota
	// flusherScheduled means a write is in flight; the loop resumes from
	// its completion callback.
	flusherScheduled
)

// Flusher is the session's single-writer iterating egress loop: drain
// ciphertext, write it to the UDP sink, repeat until idle. It also owns
// the session's sole re-armable transport timer.
type Flusher struct {
	session *Session
	timer   Scheduler

	mu    sync.Mutex
	state flusherState
}

func newFlusher(session *Session, timer Scheduler) *Flusher {
	return &Flusher{session: session, timer: timer, state: flusherIdle}
}

func (f *Flusher) setState(s flusherState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// State returns the flusher's current iteration state, for tests and
// diagnostics.
func (f *Flusher) State() flusherState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// iterate runs exactly one pass of the egress loop: acquire a buffer,
// drain ciphertext, re-arm the timer, then either go Idle, close the
// session (drained nothing and the connection already reports closed),
// or hand the buffer to the sink and resume on completion. The acquired
// buffer is released on every terminal path, including a transport error.
func (f *Flusher) iterate() {
	cfg := f.session.cfg
	buf := cfg.BufferPool.Acquire(cfg.minDatagramSize(), false)
	released := false
	release := func() {
		if !released {
			cfg.BufferPool.Release(buf)
			released = true
		}
	}

	n, err := f.session.transport.DrainCipher(buf.Bytes)
	if err != nil {
		release()
		f.setState(flusherIdle)
		f.session.closeWithCause(newTransportError(ErrCodeInternalError, err))
		return
	}

	next := f.session.transport.NextTimeout()
	if next < 0 {
		f.timer.Cancel()
	} else {
		f.timer.Schedule(time.Duration(next)*time.Millisecond, f.onTimeout)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.FlusherIterations.Inc()
	}

	if n == 0 {
		release()
		if f.session.transport.IsConnectionClosed() {
			f.setState(flusherIdle)
			f.session.closeWithCause(nil)
			return
		}
		f.setState(flusherIdle)
		return
	}

	f.setState(flusherScheduled)
	remoteAddr := f.session.RemoteAddr()
	cfg.Sink.WriteAsync(remoteAddr, buf.Bytes[:n], func(sendErr error) {
		release()
		f.setState(flusherIdle)
		if sendErr != nil {
			logger := cfg.logger()
			logger.Debug().Err(sendErr).Str("remote", remoteAddr).Msg("quic: datagram write failed, flusher stopping")
			return
		}
		f.iterate()
	})
}

// onTimeout is the Scheduler callback: notify the transport, then
// re-iterate exactly as a fresh egress-producing event would.
func (f *Flusher) onTimeout() {
	f.session.transport.OnTimeout()
	f.iterate()
}

// stop cancels the outstanding timer. Called once from Session.Close.
func (f *Flusher) stop() {
	f.timer.Cancel()
}
