package quic

import (
	"sync"
	"time"
)

// CyclicTimer is a re-armable, idempotently-cancellable one-shot timer:
// at most one outstanding timer is ever live, and re-arming or canceling
// always deterministically supersedes whatever was scheduled before,
// regardless of race between the caller and an in-flight expiry.
type CyclicTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewCyclicTimer returns a CyclicTimer with nothing scheduled.
func NewCyclicTimer() *CyclicTimer { return &CyclicTimer{} }

// Schedule cancels any previously armed expiry and arms a new one to fire
// fn after delay elapses. A negative delay cancels without rearming; a
// zero delay arms an immediate expiry, matching the flusher's "next_timeout < 0 means no timer"
// convention.
func (c *CyclicTimer) Schedule(delay time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	if delay < 0 {
		return
	}
	mySeq := c.seq
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := mySeq != c.seq
		c.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Cancel stops any outstanding expiry. Idempotent: calling it with
// nothing scheduled is a no-op.
func (c *CyclicTimer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
}
