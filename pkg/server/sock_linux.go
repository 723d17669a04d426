package server

import "golang.org/x/sys/unix"

// accept takes one pending connection as a non-blocking, close-on-exec
// socket.
func accept(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

// wakePipe returns the non-blocking read and write ends of the wake pipe.
func wakePipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}
