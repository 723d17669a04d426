package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// AppendOK appends a bare success status line.
func AppendOK(dst []byte) []byte {
	return append(dst, StatusOK+"\n"...)
}

// AppendOKSize appends a success status line followed by a size field.
func AppendOKSize(dst []byte, order ByteOrder, size uint64) []byte {
	dst = AppendOK(dst)
	return AppendUint64(order, dst, size)
}

// AppendError appends an error status line and a single-line message.
func AppendError(dst []byte, message string) []byte {
	dst = append(dst, StatusError+"\n"...)
	dst = append(dst, sanitize(message)...)
	return append(dst, '\n')
}

// AppendRequest appends a request header line. name is ignored for LIST.
func AppendRequest(dst []byte, cmd Command, name string) []byte {
	dst = append(dst, cmd.String()...)
	if cmd.TakesName() {
		dst = append(dst, ' ')
		dst = append(dst, name...)
	}
	return append(dst, '\n')
}

// Status is a decoded response status.
type Status struct {
	OK      bool
	Message string // set when OK is false
}

// ReadStatus reads the status line, and for failures the message line.
func ReadStatus(r *bufio.Reader) (Status, error) {
	line, err := readLine(r)
	if err != nil {
		return Status{}, fmt.Errorf("read status: %w", err)
	}

	switch line {
	case StatusOK:
		return Status{OK: true}, nil
	case StatusError:
		msg, err := readLine(r)
		if err != nil && !(err == io.EOF && msg != "") {
			return Status{}, fmt.Errorf("read error message: %w", err)
		}
		return Status{Message: msg}, nil
	default:
		return Status{}, fmt.Errorf("unexpected status line %q", truncate(line, 32))
	}
}

// ReadSize reads one size field.
func ReadSize(r io.Reader, order ByteOrder) (uint64, error) {
	var field [SizeFieldLen]byte
	if _, err := io.ReadFull(r, field[:]); err != nil {
		return 0, fmt.Errorf("read size: %w", err)
	}
	return Uint64(order, field[:]), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return strings.TrimSuffix(line, "\n"), err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
