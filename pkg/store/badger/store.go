// Package badger provides a file store on top of an embedded BadgerDB.
//
// Each committed file is described by a meta record pointing at a
// generation; its content lives in fixed-size chunk records keyed by that
// generation. An upload writes chunks under a fresh generation and commit
// swaps the meta record in one transaction, so readers, which run inside a
// read-only snapshot transaction, keep seeing the generation they opened.
//
// Key layout:
//
//	m:<name>                 -> generation (16 bytes) | size (8 bytes, big endian)
//	d:<generation><seq:8 BE> -> chunk bytes
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/pkg/store"
)

const (
	metaPrefix = "m:"
	dataPrefix = "d:"

	// DefaultChunkSize is the size of each stored content record.
	DefaultChunkSize = 256 << 10

	metaLen = 16 + 8
)

// Config holds configuration for the badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the whole database in memory.
	InMemory bool

	// ChunkSize is the size of content records. Default: 256KiB
	ChunkSize int
}

// Store implements store.Store on BadgerDB.
type Store struct {
	mu        sync.RWMutex
	db        *badgerdb.DB
	chunkSize int
	closed    bool
}

// New opens (or creates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required unless in_memory is set")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db, chunkSize: cfg.ChunkSize}, nil
}

func metaKey(name string) []byte {
	return append([]byte(metaPrefix), name...)
}

func chunkKey(gen uuid.UUID, seq uint64) []byte {
	k := make([]byte, 0, len(dataPrefix)+16+8)
	k = append(k, dataPrefix...)
	k = append(k, gen[:]...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func chunkPrefix(gen uuid.UUID) []byte {
	return append([]byte(dataPrefix), gen[:]...)
}

type meta struct {
	gen  uuid.UUID
	size uint64
}

func (m meta) encode() []byte {
	b := make([]byte, 0, metaLen)
	b = append(b, m.gen[:]...)
	return binary.BigEndian.AppendUint64(b, m.size)
}

func decodeMeta(b []byte) (meta, error) {
	if len(b) != metaLen {
		return meta{}, fmt.Errorf("corrupt meta record: %d bytes", len(b))
	}
	var m meta
	copy(m.gen[:], b[:16])
	m.size = binary.BigEndian.Uint64(b[16:])
	return m, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func getMeta(txn *badgerdb.Txn, name string) (meta, error) {
	item, err := txn.Get(metaKey(name))
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return meta{}, store.ErrNotFound
		}
		return meta{}, err
	}
	var m meta
	err = item.Value(func(val []byte) error {
		var derr error
		m, derr = decodeMeta(val)
		return derr
	})
	return m, err
}

// Create starts an upload under a fresh generation.
func (s *Store) Create(ctx context.Context, name string) (store.Writer, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	return &writer{
		s:      s,
		name:   name,
		gen:    uuid.New(),
		buf:    make([]byte, 0, s.chunkSize),
		closed: false,
	}, nil
}

// Open starts a snapshot transaction over the current generation of name.
func (s *Store) Open(ctx context.Context, name string) (store.Reader, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	txn := s.db.NewTransaction(false)
	m, err := getMeta(txn, name)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	return &reader{txn: txn, meta: m}, nil
}

// Remove deletes the meta record and the chunks it points at.
func (s *Store) Remove(ctx context.Context, name string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return err
	}

	var old meta
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		m, err := getMeta(txn, name)
		if err != nil {
			return err
		}
		old = m
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return err
	}

	s.dropGeneration(old.gen)
	return nil
}

// dropGeneration deletes every chunk of gen. Failures only leak space, so
// they are logged rather than returned.
func (s *Store) dropGeneration(gen uuid.UUID) {
	var keys [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = chunkPrefix(gen)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err == nil {
		err = s.deleteKeys(keys)
	}
	if err != nil {
		logger.Warn("badger: failed to drop generation", "generation", gen.String(), logger.KeyError, err)
	}
}

func (s *Store) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// HealthCheck writes and deletes a probe key.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	probe := []byte("h:probe")
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(probe, []byte("ok")); err != nil {
			return err
		}
		return txn.Delete(probe)
	})
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type writer struct {
	s      *Store
	name   string
	gen    uuid.UUID
	buf    []byte
	seq    uint64
	size   uint64
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, store.ErrFinished
	}
	written := 0
	for len(p) > 0 {
		n := copy(w.buf[len(w.buf):cap(w.buf)], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n
		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	w.size += uint64(written)
	return written, nil
}

func (w *writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if w.s.isClosed() {
		return store.ErrClosed
	}
	key := chunkKey(w.gen, w.seq)
	val := bytes.Clone(w.buf)
	if err := w.s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return fmt.Errorf("write chunk %d: %w", w.seq, err)
	}
	w.seq++
	w.buf = w.buf[:0]
	return nil
}

func (w *writer) Commit() error {
	if w.closed {
		return store.ErrFinished
	}
	w.closed = true

	if err := w.flush(); err != nil {
		w.s.dropGeneration(w.gen)
		return err
	}

	var (
		old    meta
		hadOld bool
	)
	err := w.s.db.Update(func(txn *badgerdb.Txn) error {
		m, err := getMeta(txn, w.name)
		switch {
		case err == nil:
			old, hadOld = m, true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return txn.Set(metaKey(w.name), meta{gen: w.gen, size: w.size}.encode())
	})
	if err != nil {
		w.s.dropGeneration(w.gen)
		return fmt.Errorf("publish upload: %w", err)
	}

	if hadOld {
		w.s.dropGeneration(old.gen)
	}
	return nil
}

func (w *writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.seq > 0 && !w.s.isClosed() {
		w.s.dropGeneration(w.gen)
	}
	return nil
}

type reader struct {
	txn  *badgerdb.Txn
	meta meta
	seq  uint64
	read uint64
	cur  []byte
	done bool
}

func (r *reader) Size() uint64 {
	return r.meta.size
}

func (r *reader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("read on closed reader")
	}
	for len(r.cur) == 0 {
		if r.read >= r.meta.size {
			return 0, io.EOF
		}
		item, err := r.txn.Get(chunkKey(r.meta.gen, r.seq))
		if err != nil {
			return 0, fmt.Errorf("read chunk %d: %w", r.seq, err)
		}
		r.cur, err = item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		r.seq++
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	r.read += uint64(n)
	return n, nil
}

func (r *reader) Close() error {
	if !r.done {
		r.done = true
		r.txn.Discard()
	}
	return nil
}

var _ store.Store = (*Store)(nil)
