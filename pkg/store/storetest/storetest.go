// Package storetest is a conformance suite shared by every store backend.
package storetest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/pkg/store"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutThenGet", func(t *testing.T) { testPutThenGet(t, newStore(t)) })
	t.Run("EmptyFile", func(t *testing.T) { testEmptyFile(t, newStore(t)) })
	t.Run("LargeFile", func(t *testing.T) { testLargeFile(t, newStore(t)) })
	t.Run("StagedUntilCommit", func(t *testing.T) { testStagedUntilCommit(t, newStore(t)) })
	t.Run("AbortDiscards", func(t *testing.T) { testAbortDiscards(t, newStore(t)) })
	t.Run("LastCommitWins", func(t *testing.T) { testLastCommitWins(t, newStore(t)) })
	t.Run("ReaderKeepsSnapshot", func(t *testing.T) { testReaderKeepsSnapshot(t, newStore(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, newStore(t)) })
	t.Run("OpenMissing", func(t *testing.T) { testOpenMissing(t, newStore(t)) })
	t.Run("WriterFinished", func(t *testing.T) { testWriterFinished(t, newStore(t)) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

// Put stores data under name and fails the test on error.
func Put(t *testing.T, s store.Store, name string, data []byte) {
	t.Helper()
	w, err := s.Create(context.Background(), name)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
}

// Get reads name fully and fails the test on error.
func Get(t *testing.T, s store.Store, name string) []byte {
	t.Helper()
	r, err := s.Open(context.Background(), name)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), r.Size())
	return data
}

func testPutThenGet(t *testing.T, s store.Store) {
	defer s.Close()
	Put(t, s, "a.txt", []byte("hello"))
	assert.Equal(t, []byte("hello"), Get(t, s, "a.txt"))
}

func testEmptyFile(t *testing.T, s store.Store) {
	defer s.Close()
	Put(t, s, "empty", nil)
	assert.Empty(t, Get(t, s, "empty"))
}

func testLargeFile(t *testing.T, s store.Store) {
	defer s.Close()
	data := bytes.Repeat([]byte("0123456789abcdef"), 200_000) // 3.2MB

	w, err := s.Create(context.Background(), "big.bin")
	require.NoError(t, err)
	for off := 0; off < len(data); off += 100_000 {
		end := min(off+100_000, len(data))
		_, err := w.Write(data[off:end])
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	assert.True(t, bytes.Equal(data, Get(t, s, "big.bin")))
}

func testStagedUntilCommit(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	w, err := s.Create(ctx, "pending")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = s.Open(ctx, "pending")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, w.Commit())
	assert.Equal(t, []byte("partial"), Get(t, s, "pending"))
}

func testAbortDiscards(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	Put(t, s, "keep", []byte("original"))

	w, err := s.Create(ctx, "keep")
	require.NoError(t, err)
	_, err = w.Write([]byte("replacement"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Equal(t, []byte("original"), Get(t, s, "keep"))

	w, err = s.Create(ctx, "never")
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	_, err = s.Open(ctx, "never")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testLastCommitWins(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	first, err := s.Create(ctx, "race")
	require.NoError(t, err)
	second, err := s.Create(ctx, "race")
	require.NoError(t, err)

	_, err = first.Write([]byte("first"))
	require.NoError(t, err)
	_, err = second.Write([]byte("second"))
	require.NoError(t, err)

	require.NoError(t, second.Commit())
	require.NoError(t, first.Commit())

	assert.Equal(t, []byte("first"), Get(t, s, "race"))
}

func testReaderKeepsSnapshot(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	Put(t, s, "snap", []byte("version-1"))

	r, err := s.Open(ctx, "snap")
	require.NoError(t, err)
	defer r.Close()

	Put(t, s, "snap", []byte("version-2"))

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("version-1"), data)
	assert.Equal(t, []byte("version-2"), Get(t, s, "snap"))
}

func testRemove(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	Put(t, s, "gone", []byte("bye"))

	require.NoError(t, s.Remove(ctx, "gone"))
	_, err := s.Open(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "gone"), store.ErrNotFound)
}

func testOpenMissing(t *testing.T, s store.Store) {
	defer s.Close()
	_, err := s.Open(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testWriterFinished(t *testing.T, s store.Store) {
	defer s.Close()
	w, err := s.Create(context.Background(), "done")
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, store.ErrFinished)
	assert.ErrorIs(t, w.Commit(), store.ErrFinished)
	assert.NoError(t, w.Abort())
}

func testHealthCheck(t *testing.T, s store.Store) {
	defer s.Close()
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func testClosed(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Create(ctx, "x")
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Open(ctx, "x")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Remove(ctx, "x"), store.ErrClosed)
	assert.ErrorIs(t, s.HealthCheck(ctx), store.ErrClosed)
}
