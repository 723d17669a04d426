// Package bufpool provides size-classed reusable byte slices.
//
// The server uses it for the per-connection inbound chunk and for the chunks
// a GET streams from the store to the socket, both of which are allocated
// once per connection and dropped when the connection is reaped.
//
// Requests larger than the biggest class are allocated directly and never
// pooled so that an occasional huge chunk size does not pin memory.
//
// All operations are safe for concurrent use.
//
//	buf := bufpool.Default().Get(64 << 10)
//	defer bufpool.Default().Put(buf)
package bufpool

import (
	"sort"
	"sync"
)

// DefaultClasses are the size classes of the default pool: 4KiB, 64KiB and 1MiB.
var DefaultClasses = []int{4 << 10, 64 << 10, 1 << 20}

type class struct {
	size int
	pool sync.Pool
}

// Pool hands out byte slices from a fixed set of size classes.
type Pool struct {
	classes []*class
}

// New creates a Pool with the given class sizes. Non-positive sizes are
// ignored; with no usable size, DefaultClasses is used.
func New(sizes ...int) *Pool {
	uniq := make(map[int]struct{}, len(sizes))
	for _, s := range sizes {
		if s > 0 {
			uniq[s] = struct{}{}
		}
	}
	if len(uniq) == 0 {
		for _, s := range DefaultClasses {
			uniq[s] = struct{}{}
		}
	}

	ordered := make([]int, 0, len(uniq))
	for s := range uniq {
		ordered = append(ordered, s)
	}
	sort.Ints(ordered)

	p := &Pool{classes: make([]*class, len(ordered))}
	for i, size := range ordered {
		c := &class{size: size}
		c.pool.New = func() any {
			buf := make([]byte, c.size)
			return &buf
		}
		p.classes[i] = c
	}
	return p
}

// Get returns a slice of length size backed by a pooled buffer from the
// smallest class that fits. Return it with Put when done.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	for _, c := range p.classes {
		if size <= c.size {
			buf := *(c.pool.Get().(*[]byte))
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Slices whose capacity does not match a class
// exactly, including nil, are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for _, c := range p.classes {
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}

// Classes returns the configured class sizes in ascending order.
func (p *Pool) Classes() []int {
	out := make([]int, len(p.classes))
	for i, c := range p.classes {
		out[i] = c.size
	}
	return out
}

var defaultPool = New()

// Default returns the process-wide pool built from DefaultClasses. Sessions
// created without an explicit pool share it.
func Default() *Pool {
	return defaultPool
}
