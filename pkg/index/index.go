// Package index is the in-memory directory of committed filenames.
//
// The index, not the store, is the authority for what LIST reports and what
// GET may serve. It is mutated only after a PUT commits or when a DELETE
// starts, so a listing always reflects the most recent completed mutation.
//
// An Index is not synchronized. It is owned by the server's event loop and
// must only be touched from that goroutine.
package index

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Index is an insertion-ordered set of filenames.
type Index struct {
	names *orderedmap.OrderedMap[string, struct{}]
	bytes int // sum of len(name)+1 over all names, the LIST payload size
}

// New returns an empty Index.
func New() *Index {
	return &Index{names: orderedmap.New[string, struct{}]()}
}

// Add appends name if it is not already present. It reports whether the
// index changed.
func (ix *Index) Add(name string) bool {
	if _, present := ix.names.Get(name); present {
		return false
	}
	ix.names.Set(name, struct{}{})
	ix.bytes += len(name) + 1
	return true
}

// Remove deletes name if present and reports whether it was.
func (ix *Index) Remove(name string) bool {
	if _, present := ix.names.Delete(name); !present {
		return false
	}
	ix.bytes -= len(name) + 1
	return true
}

// Contains reports whether name is indexed.
func (ix *Index) Contains(name string) bool {
	_, present := ix.names.Get(name)
	return present
}

// Len returns the number of indexed names.
func (ix *Index) Len() int {
	return ix.names.Len()
}

// Snapshot returns the names in insertion order. The slice is a copy.
func (ix *Index) Snapshot() []string {
	out := make([]string, 0, ix.names.Len())
	for pair := ix.names.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Payload returns the LIST body: every name followed by a newline.
func (ix *Index) Payload() []byte {
	out := make([]byte, 0, ix.bytes)
	for pair := ix.names.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key...)
		out = append(out, '\n')
	}
	return out
}

// Clear removes every name and returns the names that were indexed.
func (ix *Index) Clear() []string {
	names := ix.Snapshot()
	ix.names = orderedmap.New[string, struct{}]()
	ix.bytes = 0
	return names
}
