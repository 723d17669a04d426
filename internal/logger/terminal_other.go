//go:build !linux && !darwin

package logger

// isTerminal reports false so output stays uncolored on platforms without termios.
func isTerminal(fd uintptr) bool {
	return false
}
