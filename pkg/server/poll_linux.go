package server

import "golang.org/x/sys/unix"

// event is one readiness notification for a descriptor.
type event struct {
	fd       int
	readable bool
	writable bool
	hangup   bool
	failed   bool
}

// poller wraps an epoll instance.
type poller struct {
	epfd int
	raw  []unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: epfd, raw: make([]unix.EpollEvent, maxEvents)}, nil
}

// watchRead registers fd level-triggered for readability. Used for the
// listener and the wake pipe.
func (p *poller) watchRead(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// watchConn registers a client socket edge-triggered for read, write and
// peer hangup.
func (p *poller) watchConn(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// wait blocks for up to msec milliseconds (forever when negative) and fills
// events.
func (p *poller) wait(events []event, msec int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.raw[:min(len(events), len(p.raw))], msec)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := p.raw[i].Events
		events[i] = event{
			fd:       int(p.raw[i].Fd),
			readable: e&unix.EPOLLIN != 0,
			writable: e&unix.EPOLLOUT != 0,
			hangup:   e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			failed:   e&unix.EPOLLERR != 0,
		}
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}
