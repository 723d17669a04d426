// Package server runs the stowd event loop.
//
// One goroutine owns the listening socket, a readiness poller (epoll on
// Linux, kqueue on Darwin), the connection registry, the directory index and
// every session. Client sockets are non-blocking and registered
// edge-triggered; each readiness event drives the owning session until it
// would block. Other goroutines reach loop state only through Submit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/internal/protocol"
	"github.com/marmos91/stowd/pkg/bufpool"
	"github.com/marmos91/stowd/pkg/index"
	"github.com/marmos91/stowd/pkg/journal"
	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/session"
	"github.com/marmos91/stowd/pkg/store"
)

// ErrServerClosed is returned by Serve and Submit once Stop has been called.
var ErrServerClosed = errors.New("server closed")

// Config holds the event loop settings.
type Config struct {
	// BindAddress is the IP address to bind to.
	// Empty string binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// ChunkSize is the piece size a GET reads from the store.
	ChunkSize int

	// InboundSize is the capacity of each connection's read buffer.
	InboundSize int

	// MaxUploadSize rejects larger PUTs. 0 means unlimited.
	MaxUploadSize uint64

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int

	// IdleTimeout aborts sessions with no activity for this long.
	// 0 disables the reaper.
	IdleTimeout time.Duration

	// ByteOrder encodes the size fields on the wire.
	ByteOrder protocol.ByteOrder

	// CleanupOnExit removes every indexed file from the store on shutdown.
	CleanupOnExit bool
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records loop and request metrics.
func WithMetrics(m *metrics.ServerMetrics) Option {
	return func(s *Server) { s.env.Metrics = m }
}

// WithJournal records every finished request.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.env.Journal = j }
}

// WithIndex replaces the empty directory index.
func WithIndex(ix *index.Index) Option {
	return func(s *Server) {
		if ix != nil {
			s.env.Index = ix
		}
	}
}

// WithPool shares a buffer pool with the sessions.
func WithPool(p *bufpool.Pool) Option {
	return func(s *Server) { s.env.Pool = p }
}

// peer is what the loop knows about an accepted socket before and after its
// session exists.
type peer struct {
	id       uint64
	clientIP string
	accepted time.Time
}

// Server is the event loop and the context every session runs in.
//
// Thread safety:
// Serve runs the loop on the calling goroutine. Stop, Submit, Addr and
// ListenerReady are safe for concurrent use; everything else is loop-owned.
type Server struct {
	cfg      Config
	env      *session.Env
	registry *session.Registry
	peers    map[int]peer
	nextID   uint64
	started  time.Time

	addr net.Addr
	sys  sysState

	mu       sync.Mutex
	tasks    []func()
	running  bool
	stopping bool

	ready chan struct{}
	done  chan struct{}
}

// New binds and listens on cfg's address. The returned server accepts
// nothing until Serve is called.
func New(cfg Config, st store.Store, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, errors.New("server: store is required")
	}

	s := &Server{
		cfg: cfg,
		env: &session.Env{
			Index:         index.New(),
			Store:         st,
			ByteOrder:     cfg.ByteOrder,
			ChunkSize:     cfg.ChunkSize,
			MaxUploadSize: cfg.MaxUploadSize,
			InboundSize:   cfg.InboundSize,
		},
		peers: make(map[int]peer),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = session.NewRegistry(s.newSession)

	addr, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w",
			net.JoinHostPort(cfg.BindAddress, fmt.Sprint(cfg.Port)), err)
	}
	s.addr = addr

	if cfg.MaxConnections > 0 {
		logger.Debug("Connection limit", "max_connections", cfg.MaxConnections)
	} else {
		logger.Debug("Connection limit", "max_connections", "unlimited")
	}
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// ListenerReady is closed once Serve is running the loop.
func (s *Server) ListenerReady() <-chan struct{} {
	return s.ready
}

// Index returns the directory index. It must only be used from the loop,
// i.e. inside a Submit closure, while Serve is running.
func (s *Server) Index() *index.Index {
	return s.env.Index
}

// Store returns the file store sessions run against.
func (s *Server) Store() store.Store {
	return s.env.Store
}

// Serve runs the event loop until ctx is cancelled or Stop is called. It
// returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already serving")
	}
	s.running = true
	s.mu.Unlock()
	defer close(s.done)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received", logger.Err(ctx.Err()))
			s.requestStop()
		case <-s.done:
		}
	}()

	s.started = time.Now()
	close(s.ready)
	logger.Info("Server listening", "address", s.addr.String())

	return s.run(context.WithoutCancel(ctx))
}

// Stop wakes the loop, aborts every live session, clears the index and
// releases the listener and poller. It waits for Serve to return or for ctx
// to expire. Calling Stop on a server that never served only releases its
// sockets.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	already := s.stopping
	s.stopping = true
	running := s.running
	s.mu.Unlock()

	if !running {
		if !already {
			s.shutdown(context.Background())
		}
		return nil
	}

	s.wake()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server stop: %w", ctx.Err())
	}
}

// Submit queues fn to run on the loop goroutine at its next wakeup.
func (s *Server) Submit(fn func()) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()

	s.wake()
	return nil
}

// Call runs fn on the loop and waits for it to finish or for ctx to expire.
func (s *Server) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := s.Submit(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrServerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) requestStop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.wake()
}

func (s *Server) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// runTasks executes queued Submit closures in submission order.
func (s *Server) runTasks() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
}

// fdConn is a raw non-blocking socket. Read and Write report
// session.ErrWouldBlock instead of EAGAIN.
type fdConn int

// newSession is the registry factory: it binds a session to the accepted
// socket's identity.
func (s *Server) newSession(fd int) *session.Session {
	p := s.peers[fd]
	return session.New(s.env, fd, fdConn(fd), session.Info{ID: p.id, ClientIP: p.clientIP})
}

// Stats is a point-in-time view of the loop.
type Stats struct {
	Address           string        `json:"address"`
	ActiveConnections int           `json:"active_connections"`
	FilesIndexed      int           `json:"files_indexed"`
	Uptime            time.Duration `json:"uptime"`
	StoreType         string        `json:"store_type,omitempty"`
	Sessions          []SessionInfo `json:"sessions"`
}

// SessionInfo describes one live connection.
type SessionInfo struct {
	ConnectionID uint64    `json:"connection_id"`
	ClientIP     string    `json:"client_ip"`
	State        string    `json:"state"`
	LastActive   time.Time `json:"last_active"`
}

// Stats collects loop statistics on the loop goroutine.
func (s *Server) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.Call(ctx, func() {
		st = Stats{
			Address:           s.addr.String(),
			ActiveConnections: len(s.peers),
			FilesIndexed:      s.env.Index.Len(),
			Uptime:            time.Since(s.started),
			Sessions:          make([]SessionInfo, 0, s.registry.Len()),
		}
		if typed, ok := s.env.Store.(interface{ Type() string }); ok {
			st.StoreType = typed.Type()
		}
		s.registry.Range(func(_ int, sess *session.Session) bool {
			st.Sessions = append(st.Sessions, SessionInfo{
				ConnectionID: sess.Info().ID,
				ClientIP:     sess.Info().ClientIP,
				State:        sess.StateName(),
				LastActive:   sess.LastActive(),
			})
			return true
		})
	})
	return st, err
}

// Files returns a snapshot of the directory index.
func (s *Server) Files(ctx context.Context) ([]string, error) {
	var names []string
	err := s.Call(ctx, func() {
		names = s.env.Index.Snapshot()
	})
	return names, err
}

// closeReason maps a terminal session status to a metrics label.
func closeReason(st session.Status) string {
	if st == session.StatusEnded {
		return metrics.CloseEnded
	}
	return metrics.CloseErrored
}

// shutdown aborts every connection, clears the index and releases the
// loop's descriptors. It runs on the loop goroutine, or on the caller's when
// the loop never started.
func (s *Server) shutdown(ctx context.Context) {
	s.runTasks()

	for _, fd := range s.connFDs() {
		s.closeConn(fd, metrics.CloseShutdown, ErrServerClosed)
	}

	names := s.env.Index.Clear()
	s.env.Metrics.SetFilesIndexed(0)
	if s.cfg.CleanupOnExit {
		removed := 0
		for _, name := range names {
			if err := s.env.Store.Remove(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Warn("Failed to remove file on exit", logger.Filename(name), logger.Err(err))
				continue
			}
			removed++
		}
		logger.Info("Removed stored files", "count", removed)
	}

	s.release()
	logger.Info("Server stopped", "address", s.addr.String())
}
