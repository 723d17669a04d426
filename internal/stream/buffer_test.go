package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader returns one scripted result per Read call.
type scriptedReader struct {
	steps []step
}

type step struct {
	data string
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return copy(p, s.data), s.err
}

func drain(b *Buffer) string {
	var out []byte
	for {
		c, ok := b.NextByte()
		if !ok {
			return string(out)
		}
		out = append(out, c)
	}
}

func TestBuffer_NextByte(t *testing.T) {
	b := New(16)
	b.Reset(7)
	assert.Equal(t, 7, b.Handle())

	n, err := b.Fill(bytes.NewReader([]byte("LIST\n")))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, b.Remaining())

	assert.Equal(t, "LIST\n", drain(b))
	_, ok := b.NextByte()
	assert.False(t, ok, "exhausted chunk keeps returning the end sentinel")
	assert.Zero(t, b.Remaining())
}

func TestBuffer_FillReplacesChunk(t *testing.T) {
	b := New(4)
	r := bytes.NewReader([]byte("abcdefg"))

	_, err := b.Fill(r)
	require.NoError(t, err)
	c, ok := b.NextByte()
	require.True(t, ok)
	assert.Equal(t, byte('a'), c)

	_, err = b.Fill(r)
	require.NoError(t, err)
	assert.Equal(t, "efg", drain(b))
}

func TestBuffer_OneByteChunks(t *testing.T) {
	b := New(DefaultSize)
	r := iotest.OneByteReader(bytes.NewReader([]byte("hello")))

	var got []byte
	for {
		n, err := b.Fill(r)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got = append(got, b.Take(-1)...)
	}
	assert.Equal(t, "hello", string(got))
	assert.True(t, b.EOF())
}

func TestBuffer_Take(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultSize, b.Cap())

	b.Load([]byte("0123456789"))
	assert.Equal(t, "012", string(b.Take(3)))
	assert.Equal(t, 7, b.Remaining())
	assert.Equal(t, "3456789", string(b.Take(100)))
	assert.Empty(t, b.Take(1))
}

func TestBuffer_Flags(t *testing.T) {
	t.Run("WouldBlockLeavesFlagsClear", func(t *testing.T) {
		b := New(8)
		_, err := b.Fill(&scriptedReader{steps: []step{{err: ErrWouldBlock}}})
		assert.ErrorIs(t, err, ErrWouldBlock)
		assert.False(t, b.EOF())
		assert.NoError(t, b.Err())
	})

	t.Run("ZeroReadIsEOF", func(t *testing.T) {
		b := New(8)
		_, err := b.Fill(&scriptedReader{steps: []step{{}}})
		assert.ErrorIs(t, err, io.EOF)
		assert.True(t, b.EOF())
	})

	t.Run("DataWithEOFReportedSeparately", func(t *testing.T) {
		b := New(8)
		r := &scriptedReader{steps: []step{{data: "hi", err: io.EOF}}}
		n, err := b.Fill(r)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, b.EOF())

		_, err = b.Fill(r)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("TransportErrorSticks", func(t *testing.T) {
		b := New(8)
		boom := errors.New("connection reset")
		_, err := b.Fill(&scriptedReader{steps: []step{{err: boom}, {data: "late"}}})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, b.Err(), boom)

		_, err = b.Fill(&scriptedReader{steps: []step{{data: "late"}}})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ResetClearsFlags", func(t *testing.T) {
		b := New(8)
		_, _ = b.Fill(&scriptedReader{})
		require.True(t, b.EOF())

		b.Reset(3)
		assert.False(t, b.EOF())
		assert.NoError(t, b.Err())
		assert.Zero(t, b.Remaining())
	})
}

func TestBuffer_Discard(t *testing.T) {
	b := New(8)
	b.Load([]byte("abcdef"))
	_, _ = b.NextByte()
	assert.Equal(t, 5, b.Discard())
	assert.Zero(t, b.Remaining())
}

func TestBuffer_NewFrom(t *testing.T) {
	chunk := make([]byte, 8)
	b := NewFrom(chunk)
	assert.Equal(t, 8, b.Cap())
	assert.Equal(t, -1, b.Handle())

	b.Load([]byte("abc"))
	assert.Equal(t, []byte("abc"), chunk[:3], "shares the backing array")
	assert.Equal(t, &chunk[0], &b.Chunk()[0])

	assert.Equal(t, DefaultSize, NewFrom(nil).Cap())
}
