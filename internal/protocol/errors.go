package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest marks a malformed header or an unknown command.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidName marks a filename the server refuses to store.
	ErrInvalidName = fmt.Errorf("%w: invalid filename", ErrBadRequest)

	// ErrHeaderTooLong marks a request line longer than MaxHeaderSize.
	ErrHeaderTooLong = fmt.Errorf("%w: header exceeds %d bytes", ErrBadRequest, MaxHeaderSize)
)

// Error is a request failure reported to the client as ERROR\n<Message>\n.
// Err keeps the underlying cause for logs and is never sent on the wire.
type Error struct {
	Message string
	Err     error
}

// NewError returns an Error with the given wire message and cause.
func NewError(message string, cause error) *Error {
	return &Error{Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WireMessage picks the message sent to the client for err.
// Protocol errors collapse to MsgBadRequest; anything else carries its own text.
func WireMessage(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	if errors.Is(err, ErrBadRequest) {
		return MsgBadRequest
	}
	return sanitize(err.Error())
}

// sanitize keeps a message on one line so it cannot break response framing.
func sanitize(msg string) string {
	out := []byte(msg)
	for i, c := range out {
		if c == '\n' || c == '\r' {
			out[i] = ' '
		}
	}
	return string(out)
}
