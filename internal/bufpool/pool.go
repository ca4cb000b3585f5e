// Package bufpool provides a small sync.Pool-backed byte-slice pool, used
// by the stream iterator to avoid allocating a fresh scratch decode buffer
// on every call to Next.
package bufpool

import "sync"

var bytePool = sync.Pool{
	New: func() any {
		b := make([]byte, 4096)
		return &b
	},
}

// Get returns a *[]byte sliced to exactly capacity bytes. Callers must
// return it with Put when they're done with it.
func Get(capacity int) *[]byte {
	ptr := bytePool.Get().(*[]byte)
	if cap(*ptr) < capacity {
		b := make([]byte, capacity)
		return &b
	}
	*ptr = (*ptr)[:capacity]
	return ptr
}

// Put returns ptr to the pool for reuse.
func Put(ptr *[]byte) {
	bytePool.Put(ptr)
}
