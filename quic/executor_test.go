package quic

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPooledExecutorRunsEveryTask(t *testing.T) {
	e := NewPooledExecutor(2)
	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		e.Dispatch(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	e.Wait()
	assert.Equal(t, int32(20), atomic.LoadInt32(&n))
}

func TestSyncExecutorRunsInline(t *testing.T) {
	e := SyncExecutor{}
	ran := false
	e.Dispatch(func() { ran = true })
	assert.True(t, ran, "SyncExecutor must have already run the task by the time Dispatch returns")
}
