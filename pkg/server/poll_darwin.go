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

// poller wraps a kqueue.
type poller struct {
	kq  int
	raw []unix.Kevent_t
}

func newPoller() (*poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &poller{kq: kq, raw: make([]unix.Kevent_t, maxEvents)}, nil
}

func (p *poller) register(changes ...unix.Kevent_t) error {
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

// watchRead registers fd level-triggered for readability. Used for the
// listener and the wake pipe.
func (p *poller) watchRead(fd int) error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, unix.EVFILT_READ, unix.EV_ADD)
	return p.register(ev)
}

// watchConn registers a client socket edge-triggered (EV_CLEAR) for read
// and write.
func (p *poller) watchConn(fd int) error {
	var rd, wr unix.Kevent_t
	unix.SetKevent(&rd, fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR)
	unix.SetKevent(&wr, fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR)
	return p.register(rd, wr)
}

// wait blocks for up to msec milliseconds (forever when negative) and fills
// events.
func (p *poller) wait(events []event, msec int) (int, error) {
	var ts *unix.Timespec
	if msec >= 0 {
		t := unix.NsecToTimespec(int64(msec) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.raw[:min(len(events), len(p.raw))], ts)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := p.raw[i]
		events[i] = event{
			fd:       int(e.Ident),
			readable: e.Filter == unix.EVFILT_READ,
			writable: e.Filter == unix.EVFILT_WRITE,
			hangup:   e.Flags&unix.EV_EOF != 0,
			failed:   e.Flags&unix.EV_ERROR != 0,
		}
	}
	return n, nil
}

func (p *poller) close() error {
	return unix.Close(p.kq)
}
