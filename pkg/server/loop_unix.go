//go:build linux || darwin

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/session"
)

// maxEvents bounds the readiness events handled per wakeup.
const maxEvents = 256

// idleTick is the longest the loop sleeps while the idle reaper is enabled.
const idleTick = time.Second

var errIdle = errors.New("idle timeout")

// sysState holds the loop's descriptors.
type sysState struct {
	lfd   int
	wakeR int
	wakeW int
	poll  *poller
}

// open creates the listener, the poller and the wake pipe.
func (s *Server) open() (net.Addr, error) {
	s.sys = sysState{lfd: -1, wakeR: -1, wakeW: -1}

	lfd, addr, err := listen(s.cfg.BindAddress, s.cfg.Port)
	if err != nil {
		return nil, err
	}
	s.sys.lfd = lfd

	poll, err := newPoller()
	if err != nil {
		s.release()
		return nil, fmt.Errorf("create poller: %w", err)
	}
	s.sys.poll = poll

	r, w, err := wakePipe()
	if err != nil {
		s.release()
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}
	s.sys.wakeR, s.sys.wakeW = r, w

	if err := poll.watchRead(lfd); err != nil {
		s.release()
		return nil, fmt.Errorf("watch listener: %w", err)
	}
	if err := poll.watchRead(r); err != nil {
		s.release()
		return nil, fmt.Errorf("watch wake pipe: %w", err)
	}
	return addr, nil
}

// release closes the listener, the poller and the wake pipe.
func (s *Server) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fd := range []*int{&s.sys.lfd, &s.sys.wakeR, &s.sys.wakeW} {
		if *fd >= 0 {
			_ = unix.Close(*fd)
			*fd = -1
		}
	}
	if s.sys.poll != nil {
		_ = s.sys.poll.close()
		s.sys.poll = nil
	}
}

// wake interrupts the readiness wait.
func (s *Server) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sys.wakeW < 0 {
		return
	}
	// A full pipe already guarantees a pending wakeup.
	_, _ = unix.Write(s.sys.wakeW, []byte{1})
}

func (s *Server) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(s.sys.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// run is the event loop.
func (s *Server) run(ctx context.Context) error {
	events := make([]event, maxEvents)
	timeout := -1
	if s.cfg.IdleTimeout > 0 {
		timeout = int(min(s.cfg.IdleTimeout, idleTick) / time.Millisecond)
	}

	for {
		n, err := s.sys.poll.wait(events, timeout)
		if err != nil && !errors.Is(err, unix.EINTR) {
			logger.Error("Readiness wait failed", logger.Err(err))
			s.shutdown(ctx)
			return fmt.Errorf("poll: %w", err)
		}

		for _, ev := range events[:n] {
			switch ev.fd {
			case s.sys.lfd:
				s.acceptAll()
			case s.sys.wakeR:
				s.drainWake()
			default:
				s.handle(ctx, ev)
			}
		}

		s.runTasks()
		if s.cfg.IdleTimeout > 0 {
			s.reapIdle(time.Now())
		}
		if s.stopRequested() {
			s.shutdown(ctx)
			return nil
		}
	}
}

// acceptAll accepts until the listener would block.
func (s *Server) acceptAll() {
	for {
		fd, sa, err := accept(s.sys.lfd)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
				s.env.Metrics.RecordAcceptError()
				logger.Warn("Accept failed: out of file descriptors", logger.Err(err))
			default:
				s.env.Metrics.RecordAcceptError()
				logger.Error("Accept failed", logger.Err(err))
			}
			return
		}

		if limit := s.cfg.MaxConnections; limit > 0 && len(s.peers) >= limit {
			_ = unix.Close(fd)
			s.env.Metrics.RecordConnectionRejected()
			logger.Debug("Connection rejected: limit reached", "max_connections", limit)
			continue
		}

		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
		}
		if err := s.sys.poll.watchConn(fd); err != nil {
			_ = unix.Close(fd)
			s.env.Metrics.RecordAcceptError()
			logger.Error("Failed to register connection", logger.Err(err))
			continue
		}

		s.nextID++
		p := peer{id: s.nextID, clientIP: sockaddrIP(sa), accepted: time.Now()}
		s.peers[fd] = p

		s.env.Metrics.RecordConnectionAccepted()
		s.env.Metrics.SetActiveConnections(len(s.peers))
		logger.Debug("Connection accepted",
			logger.ConnectionID(p.id), logger.ClientIP(p.clientIP),
			logger.KeyFD, fd, logger.KeyActive, len(s.peers))
	}
}

// handle drives the session behind a client socket for one readiness event.
func (s *Server) handle(ctx context.Context, ev event) {
	if _, ok := s.peers[ev.fd]; !ok {
		return
	}
	sess := s.registry.GetOrCreate(ev.fd)

	if ev.readable || ev.hangup || ev.failed {
		s.readFrom(ctx, sess)
	}
	if ev.writable && sess.Status() == session.StatusWaiting {
		sess.ProcessNext(ctx)
	}

	if st := sess.Status(); st != session.StatusWaiting {
		s.closeConn(ev.fd, closeReason(st), sess.Err())
	}
}

// readFrom feeds the session one chunk at a time until the socket would
// block, the peer closes, or the session leaves the waiting status.
func (s *Server) readFrom(ctx context.Context, sess *session.Session) {
	conn := fdConn(sess.Handle())
	for sess.Status() == session.StatusWaiting {
		n, err := sess.In().Fill(conn)
		if n > 0 {
			sess.ProcessNext(ctx)
		}
		switch {
		case err == nil:
		case errors.Is(err, session.ErrWouldBlock):
			sess.Drained(ctx)
			return
		case errors.Is(err, io.EOF):
			sess.ProcessNext(ctx)
			return
		default:
			sess.Abort(fmt.Errorf("read: %w", err))
			return
		}
	}
}

// reapIdle aborts connections with no activity for longer than IdleTimeout.
func (s *Server) reapIdle(now time.Time) {
	for _, fd := range s.connFDs() {
		last := s.peers[fd].accepted
		if sess := s.registry.Get(fd); sess != nil {
			last = sess.LastActive()
		}
		if now.Sub(last) > s.cfg.IdleTimeout {
			s.closeConn(fd, metrics.CloseIdle, errIdle)
		}
	}
}

// connFDs returns the client sockets in ascending order.
func (s *Server) connFDs() []int {
	fds := make([]int, 0, len(s.peers))
	for fd := range s.peers {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

// closeConn reaps the session, closes the socket and forgets the peer. A
// session still in flight is aborted with cause.
func (s *Server) closeConn(fd int, reason string, cause error) {
	p, ok := s.peers[fd]
	if !ok {
		return
	}

	state := "none"
	if sess := s.registry.Get(fd); sess != nil {
		state = sess.StateName()
		if sess.Status() == session.StatusWaiting {
			sess.Abort(cause)
		}
		s.registry.Remove(fd)
	}

	// Closing the descriptor also drops it from the poller.
	_ = unix.Close(fd)
	delete(s.peers, fd)

	s.env.Metrics.RecordConnectionClosed(reason)
	s.env.Metrics.SetActiveConnections(len(s.peers))

	args := []any{
		logger.ConnectionID(p.id), logger.ClientIP(p.clientIP),
		"reason", reason, logger.State(state), logger.KeyActive, len(s.peers),
	}
	if cause != nil && reason != metrics.CloseEnded {
		args = append(args, logger.Err(cause))
	}
	logger.Debug("Connection closed", args...)
}

// listen opens a non-blocking, close-on-exec listening socket.
func listen(bind string, port int) (int, net.Addr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(bind, fmt.Sprint(port)))
	if err != nil {
		return -1, nil, err
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		in4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(in4.Addr[:], ip4)
		}
		sa = in4
	} else {
		family = unix.AF_INET6
		in6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(in6.Addr[:], tcpAddr.IP.To16())
		sa = in6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (int, net.Addr, error) {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("set SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fail("listen", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return fd, sockaddrTCP(bound), nil
}

func sockaddrTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}

func sockaddrIP(sa unix.Sockaddr) string {
	addr := sockaddrTCP(sa)
	if addr.IP == nil {
		return ""
	}
	return addr.IP.String()
}

func (c fdConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(c), p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, session.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

func (c fdConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(int(c), p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return written, session.ErrWouldBlock
		default:
			return written, err
		}
	}
	return written, nil
}
