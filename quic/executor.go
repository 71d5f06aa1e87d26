package quic

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor abstracts the eat-what-you-kill dispatch strategy described by
// the session's concurrency model: the thread that produced work runs the
// first task itself, and any later task is offered to a pool so an idle
// worker can steal it rather than forcing a handoff. Tasks must be
// non-blocking with respect to the session lock; they may re-enter the
// session via Flush.
type Executor interface {
	// Dispatch submits task for execution. The calling goroutine may run
	// it inline, or it may be handed to a worker; callers must not assume
	// either.
	Dispatch(task func())
}

// PooledExecutor is the production Executor: a bounded errgroup.Group
// fans dispatched tasks out to at most limit concurrently-running
// goroutines (SetLimit blocks a Go call until a slot is free, which gives
// the "kill" half of eat-what-you-kill its worker-pool semantics for
// free). The ingress path still runs the first task of a burst inline by
// simply calling it directly instead of going through Dispatch; everything
// handed to Dispatch is the overflow the errgroup schedules.
type PooledExecutor struct {
	mu sync.Mutex
	g  *errgroup.Group
}

// NewPooledExecutor returns an Executor backed by an errgroup.Group
// limited to workers concurrent goroutines. workers must be at least 1.
func NewPooledExecutor(workers int) *PooledExecutor {
	if workers < 1 {
		workers = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return &PooledExecutor{g: g}
}

// Dispatch hands task to the errgroup. Blocks only if every worker slot
// is currently busy, in which case the calling goroutine waits for one to
// free rather than growing the pool unboundedly.
func (e *PooledExecutor) Dispatch(task func()) {
	e.mu.Lock()
	g := e.g
	e.mu.Unlock()
	g.Go(func() error {
		task()
		return nil
	})
}

// Wait blocks until every task dispatched so far has returned. Used by
// tests and by graceful-shutdown paths that want dispatched work to drain
// before tearing down collaborators the tasks might still touch.
func (e *PooledExecutor) Wait() {
	e.mu.Lock()
	g := e.g
	e.mu.Unlock()
	_ = g.Wait()
}

// SyncExecutor runs every dispatched task inline, in submission order.
// Installed by tests per the package's design note so assertions can run
// immediately after a call that would otherwise complete asynchronously.
type SyncExecutor struct{}

// Dispatch runs task synchronously.
func (SyncExecutor) Dispatch(task func()) { task() }
