// Package stream holds the per-connection inbound chunk buffer.
//
// A Buffer holds exactly one chunk delivered by one non-blocking read. The
// event loop refills it with Fill; the session drains it with NextByte (header
// bytes) and Take (payload bytes). The Buffer itself never performs I/O
// outside Fill.
package stream

import (
	"errors"
	"io"
)

// ErrWouldBlock is returned by readers that have no data available right now.
// Fill passes it through without flagging the buffer.
var ErrWouldBlock = errors.New("operation would block")

// DefaultSize is the chunk capacity used when New is given a non-positive size.
const DefaultSize = 64 * 1024

// Buffer is a single-chunk inbound buffer bound to one socket handle.
//
// Invariant: cursor <= valid. Once EOF or Err is set, Fill performs no
// further reads until Reset.
type Buffer struct {
	handle int
	chunk  []byte
	cursor int
	valid  int
	eof    bool
	err    error
}

// New returns an empty Buffer with the given chunk capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{handle: -1, chunk: make([]byte, size)}
}

// NewFrom returns an empty Buffer using chunk as its backing storage, so the
// chunk can come from a pool. The caller gets it back from Chunk.
func NewFrom(chunk []byte) *Buffer {
	if len(chunk) == 0 {
		return New(0)
	}
	return &Buffer{handle: -1, chunk: chunk}
}

// Reset clears all state and rebinds the buffer to handle.
func (b *Buffer) Reset(handle int) {
	b.handle = handle
	b.cursor = 0
	b.valid = 0
	b.eof = false
	b.err = nil
}

// Handle returns the socket handle the buffer is bound to.
func (b *Buffer) Handle() int {
	return b.handle
}

// Fill replaces the current chunk with at most one read from r.
//
// A read of zero bytes with a nil error, or io.EOF, sets the end-of-stream
// flag and returns io.EOF. ErrWouldBlock is returned as-is. Any other error
// sets the error flag. Once either flag is set Fill returns immediately.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.eof {
		return 0, io.EOF
	}

	b.cursor = 0
	b.valid = 0

	n, err := r.Read(b.chunk)
	if n > 0 {
		b.valid = n
	}

	switch {
	case err == nil && n == 0:
		b.eof = true
		return 0, io.EOF
	case err == nil:
		return n, nil
	case errors.Is(err, ErrWouldBlock):
		return n, err
	case errors.Is(err, io.EOF):
		b.eof = true
		if n > 0 {
			// Report the data now; the next Fill reports EOF.
			return n, nil
		}
		return 0, io.EOF
	default:
		b.err = err
		return n, err
	}
}

// Load replaces the current chunk with a copy of p. It is the in-memory
// counterpart of Fill, used when bytes were already read elsewhere.
// p is truncated to the chunk capacity; the number of bytes kept is returned.
func (b *Buffer) Load(p []byte) int {
	n := copy(b.chunk, p)
	b.cursor = 0
	b.valid = n
	return n
}

// NextByte returns the next buffered byte, or false once the chunk is
// exhausted. Callers must not call it again after false until a refill.
func (b *Buffer) NextByte() (byte, bool) {
	if b.cursor >= b.valid {
		return 0, false
	}
	c := b.chunk[b.cursor]
	b.cursor++
	return c, true
}

// Take returns up to max unread bytes without copying and advances past
// them. The slice is only valid until the next Fill or Load.
func (b *Buffer) Take(max int) []byte {
	n := b.valid - b.cursor
	if max >= 0 && n > max {
		n = max
	}
	p := b.chunk[b.cursor : b.cursor+n]
	b.cursor += n
	return p
}

// Discard drops every unread byte of the current chunk and returns how many
// were dropped.
func (b *Buffer) Discard() int {
	n := b.valid - b.cursor
	b.cursor = b.valid
	return n
}

// Remaining returns the number of unread bytes in the current chunk.
func (b *Buffer) Remaining() int {
	return b.valid - b.cursor
}

// EOF reports whether the peer has closed its sending side.
func (b *Buffer) EOF() bool {
	return b.eof
}

// Err returns the transport error that stopped further reads, if any.
func (b *Buffer) Err() error {
	return b.err
}

// Chunk returns the backing storage.
func (b *Buffer) Chunk() []byte {
	return b.chunk
}

// Cap returns the chunk capacity.
func (b *Buffer) Cap() int {
	return len(b.chunk)
}
