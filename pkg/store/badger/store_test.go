package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/pkg/store"
	"github.com/marmos91/stowd/pkg/store/storetest"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true, ChunkSize: 64 << 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newMemoryStore(t)
	})
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Path: dir})
	require.NoError(t, err)
	storetest.Put(t, s, "persisted", []byte("still here"))
	require.NoError(t, s.Close())

	reopened, err := New(Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []byte("still here"), storetest.Get(t, reopened, "persisted"))
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBadgerStore_ReplacedGenerationIsDropped(t *testing.T) {
	s := newMemoryStore(t)
	defer s.Close()

	storetest.Put(t, s, "f", make([]byte, 200<<10))
	storetest.Put(t, s, "f", []byte("small"))

	assert.Equal(t, 1, countKeys(t, s, dataPrefix), "only the live generation's chunk remains")
	assert.Equal(t, []byte("small"), storetest.Get(t, s, "f"))

	require.NoError(t, s.Remove(context.Background(), "f"))
	assert.Zero(t, countKeys(t, s, dataPrefix))
	assert.Zero(t, countKeys(t, s, metaPrefix))
}

func TestBadgerStore_AbortDropsChunks(t *testing.T) {
	s := newMemoryStore(t)
	defer s.Close()

	w, err := s.Create(context.Background(), "aborted")
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 130<<10))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Zero(t, countKeys(t, s, dataPrefix))
}

func TestMetaEncoding(t *testing.T) {
	m := meta{size: 12345}
	m.gen[0] = 0xAB

	decoded, err := decodeMeta(m.encode())
	require.NoError(t, err)
	assert.Equal(t, m, decoded)

	_, err = decodeMeta([]byte("short"))
	assert.Error(t, err)
}
