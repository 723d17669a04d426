// Package fs provides afero-backed file stores: one over the operating
// system filesystem rooted at a base path, and one fully in memory.
//
// Layout under the root:
//
//	files/<name>          committed files
//	staging/.up-*.tmp     in-flight uploads, renamed into files/ on commit
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/marmos91/stowd/pkg/store"
)

const (
	filesDir   = "files"
	stagingDir = "staging"
)

// Config holds configuration for the filesystem store.
type Config struct {
	// BasePath is the storage root.
	BasePath string

	// CreateDir creates the base directory if it doesn't exist.
	CreateDir bool

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for stored files.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration for basePath.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// Store implements store.Store on top of an afero.Fs.
type Store struct {
	mu       sync.RWMutex
	fs       afero.Fs
	kind     string
	fileMode os.FileMode
	closed   bool
}

// New creates a store rooted at cfg.BasePath on the OS filesystem.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}

	osFs := afero.NewOsFs()
	if cfg.CreateDir {
		if err := osFs.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("create base path: %w", err)
		}
	}

	info, err := osFs.Stat(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("stat base path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", cfg.BasePath)
	}

	return newStore(afero.NewBasePathFs(osFs, cfg.BasePath), "fs", cfg)
}

// NewMemory creates a store held entirely in memory.
func NewMemory() *Store {
	s, err := newStore(afero.NewMemMapFs(), "memory", Config{})
	if err != nil {
		// MkdirAll on a fresh MemMapFs cannot fail.
		panic(err)
	}
	return s
}

// NewWithFs creates a store over an arbitrary afero.Fs.
func NewWithFs(fsys afero.Fs, cfg Config) (*Store, error) {
	return newStore(fsys, "fs", cfg)
}

func newStore(fsys afero.Fs, kind string, cfg Config) (*Store, error) {
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	for _, dir := range []string{filesDir, stagingDir} {
		if err := fsys.MkdirAll(dir, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	return &Store{fs: fsys, kind: kind, fileMode: cfg.FileMode}, nil
}

// Type returns "fs" or "memory".
func (s *Store) Type() string {
	return s.kind
}

func filePath(name string) string {
	return path.Join(filesDir, name)
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

// Create starts a staged upload in the staging directory.
func (s *Store) Create(ctx context.Context, name string) (store.Writer, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	f, err := afero.TempFile(s.fs, stagingDir, ".up-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	return &writer{s: s, f: f, target: name}, nil
}

// Open returns a reader over the committed file.
func (s *Store) Open(ctx context.Context, name string) (store.Reader, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(filePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, store.ErrNotFound
	}

	return &reader{File: f, size: uint64(info.Size())}, nil
}

// Remove deletes the committed file.
func (s *Store) Remove(ctx context.Context, name string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	if err := checkName(name); err != nil {
		return err
	}

	if err := s.fs.Remove(filePath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// HealthCheck writes and removes a probe file in the staging directory.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return store.ErrClosed
	}

	f, err := afero.TempFile(s.fs, stagingDir, ".health-*")
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	probe := f.Name()
	_, werr := f.Write([]byte("ok"))
	cerr := f.Close()
	rerr := s.fs.Remove(probe)

	return errors.Join(werr, cerr, rerr)
}

// Close marks the store closed. Staged uploads still open are left for the
// caller to abort.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type writer struct {
	s      *Store
	f      afero.File
	target string
	done   bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrFinished
	}
	return w.f.Write(p)
}

func (w *writer) Commit() error {
	if w.done {
		return store.ErrFinished
	}
	w.done = true

	staged := w.f.Name()
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = w.s.fs.Remove(staged)
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := w.f.Close(); err != nil {
		_ = w.s.fs.Remove(staged)
		return fmt.Errorf("close upload: %w", err)
	}
	if w.s.isClosed() {
		_ = w.s.fs.Remove(staged)
		return store.ErrClosed
	}

	if err := w.s.fs.Chmod(staged, w.s.fileMode); err != nil {
		_ = w.s.fs.Remove(staged)
		return fmt.Errorf("chmod upload: %w", err)
	}
	if err := w.s.fs.Rename(staged, filePath(w.target)); err != nil {
		_ = w.s.fs.Remove(staged)
		return fmt.Errorf("publish upload: %w", err)
	}
	return nil
}

func (w *writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	staged := w.f.Name()
	cerr := w.f.Close()
	rerr := w.s.fs.Remove(staged)
	if errors.Is(rerr, fs.ErrNotExist) {
		rerr = nil
	}
	return errors.Join(cerr, rerr)
}

type reader struct {
	afero.File
	size uint64
}

func (r *reader) Size() uint64 {
	return r.size
}

var _ store.Store = (*Store)(nil)
