package quic

import "sync"

// dataChunkSizeClasses is a size-classed allocation ladder, with a class
// sized for QUICHEMinClientInitialLen so a flusher iteration's cipher
// buffer never needs an unpooled allocation on the common path.
var dataChunkSizeClasses = []int{
	1 << 10,
	QUICHEMinClientInitialLen,
	2 << 10,
	4 << 10,
	8 << 10,
	16 << 10,
}

// DefaultBufferPool is a size-classed sync.Pool ladder exposed through
// the Acquire/Release contract the session and flusher use.
type DefaultBufferPool struct {
	pools []sync.Pool
}

// NewDefaultBufferPool returns a ready-to-use pool.
func NewDefaultBufferPool() *DefaultBufferPool {
	p := &DefaultBufferPool{pools: make([]sync.Pool, len(dataChunkSizeClasses))}
	for i, size := range dataChunkSizeClasses {
		size := size
		p.pools[i].New = func() interface{} { return make([]byte, size) }
	}
	return p
}

// Acquire returns a Buffer whose Bytes slice has length at least
// minCapacity. directHint requests an unpooled allocation, appropriate
// for a buffer that will be held far longer than one flush cycle and
// would otherwise pin a pooled slice.
func (p *DefaultBufferPool) Acquire(minCapacity int, directHint bool) *Buffer {
	if directHint {
		return &Buffer{Bytes: make([]byte, minCapacity), class: -1}
	}
	for i, size := range dataChunkSizeClasses {
		if minCapacity <= size {
			buf := p.pools[i].Get().([]byte)
			if cap(buf) < minCapacity {
				buf = make([]byte, size)
			}
			return &Buffer{Bytes: buf[:size], class: i}
		}
	}
	return &Buffer{Bytes: make([]byte, minCapacity), class: -1}
}

// Release returns b to its size class, or drops it for GC if it was an
// unpooled (directHint or oversized) allocation.
func (p *DefaultBufferPool) Release(b *Buffer) {
	if b == nil || b.class < 0 {
		return
	}
	p.pools[b.class].Put(b.Bytes)
}
